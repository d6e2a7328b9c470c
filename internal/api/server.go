package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mining-tunnel/tunnel/internal/database"
	"github.com/mining-tunnel/tunnel/internal/metrics"
	"github.com/mining-tunnel/tunnel/internal/miner"
	"github.com/mining-tunnel/tunnel/internal/poolstats"
	"github.com/mining-tunnel/tunnel/internal/sysmetrics"
)

// HistoryLookup is the one synchronous read the HTTP surface needs from
// the persistence layer; satisfied by *persistence.Adapter.
type HistoryLookup interface {
	LookupByWalletPrefix(ctx context.Context, prefix string) ([]database.MinerSnapshot, error)
}

// DatabaseSizeReader reports logical database size for /api/metrics.
type DatabaseSizeReader interface {
	DatabaseSizeBytes(ctx context.Context) (int64, error)
}

// SystemSnapshotter supplies the current host metrics; satisfied by
// *sysmetrics.Monitor.
type SystemSnapshotter interface {
	Snapshot() sysmetrics.Snapshot
}

// ServerConfig holds the settings needed to stand up the HTTP surface.
type ServerConfig struct {
	Port string
}

// Server wires the read-only HTTP surface over the two registries, the
// system metrics monitor, and the persistence layer's history lookup.
type Server struct {
	config ServerConfig

	miners    *miner.Registry
	pools     *poolstats.Registry
	sysMon    SystemSnapshotter
	history   HistoryLookup
	dbSize    DatabaseSizeReader
	promReg   *prometheus.Registry
	collector *metrics.Collector
	snapCache *metricsSnapshotCache

	router     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the gin router and registers every route from the
// external interfaces section.
func NewServer(
	cfg ServerConfig,
	miners *miner.Registry,
	pools *poolstats.Registry,
	sysMon SystemSnapshotter,
	history HistoryLookup,
	dbSize DatabaseSizeReader,
	cache SnapshotCacher,
) *Server {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg, miners, pools, sysMon)

	s := &Server{
		config:    cfg,
		miners:    miners,
		pools:     pools,
		sysMon:    sysMon,
		history:   history,
		dbSize:    dbSize,
		promReg:   reg,
		collector: collector,
		snapCache: newMetricsSnapshotCache(cache),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), CORSMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/api/metrics", s.handleAPIMetrics)
	router.GET("/api/i/:wallet_prefix", s.handleMinerByWalletPrefix)
	router.GET("/api/network/stats", s.handleNetworkStats)
	router.GET("/api/shares/stats", s.handleShareStats)
	router.GET("/api/logs/stream", s.handleLogsStream)
	router.GET("/metrics", s.handlePrometheusMetrics(reg))

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "mining-tunnel",
	})
}

func (s *Server) handlePrometheusMetrics(reg *prometheus.Registry) gin.HandlerFunc {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		s.collector.Refresh()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	log.Printf("[INFO] api: listening on port %s", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
