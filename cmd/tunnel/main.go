package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mining-tunnel/tunnel/internal/api"
	"github.com/mining-tunnel/tunnel/internal/config"
	"github.com/mining-tunnel/tunnel/internal/database"
	"github.com/mining-tunnel/tunnel/internal/miner"
	"github.com/mining-tunnel/tunnel/internal/persistence"
	"github.com/mining-tunnel/tunnel/internal/pingmonitor"
	"github.com/mining-tunnel/tunnel/internal/poolstats"
	"github.com/mining-tunnel/tunnel/internal/stratum"
	"github.com/mining-tunnel/tunnel/internal/sysmetrics"
)

const version = "1.0.0"

func main() {
	var (
		noData   = flag.Bool("nodata", false, "disable persistence to Postgres")
		noAPI    = flag.Bool("noapi", false, "disable the HTTP exposition server")
		noDebug  = flag.Bool("nodebug", false, "silence non-fatal stdout logging")
		useTLS   = flag.Bool("tls", false, "accepted but currently unused on the listener")
		tlsCert  = flag.String("tlscert", "", "accepted but currently unused on the listener")
		tlsKey   = flag.String("tlskey", "", "accepted but currently unused on the listener")
		showVer  = flag.Bool("version", false, "print version and exit")
		cfgPath  = flag.String("config", "config.yml", "path to config.yml")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version)
		return
	}
	_ = useTLS
	_ = tlsCert
	_ = tlsKey

	if *noDebug {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.LoadOrCreate(*cfgPath)
	if err != nil {
		log.Fatalf("[ERROR] failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	miners := miner.NewRegistry()
	pools := poolstats.NewRegistry()
	sysMon := sysmetrics.New(miners)

	var sink stratum.PersistenceSink = noopSink{}
	var historyLookup api.HistoryLookup
	var dbSizeReader api.DatabaseSizeReader

	if !*noData {
		store, adapter, err := setupPersistence(cfg)
		if err != nil {
			log.Fatalf("[ERROR] failed to set up persistence: %v", err)
		}
		defer adapter.Close()
		defer store.Close()

		sink = adapter
		historyLookup = adapter
		dbSizeReader = store

		go runRetentionJob(ctx, store)
		go runTrafficSampler(ctx, store, miners)
		go runDBHealthCheck(ctx, store)
	} else {
		log.Printf("[INFO] persistence disabled via --nodata")
	}

	tunnels, err := buildTunnels(cfg, miners, pools, sink)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	for _, t := range tunnels {
		if err := t.Listen(); err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
		log.Printf("[INFO] tunnel %s: listening on %s, relaying to %s", t.Name, t.BindAddr, t.PoolAddr)
		go t.Serve(ctx)
	}

	go sysMon.Run(ctx)

	pingPools := make([]pingmonitor.Pool, 0, len(cfg.Pools))
	for _, p := range cfg.Pools {
		pingPools = append(pingPools, pingmonitor.Pool{Name: p.Name, Addr: fmt.Sprintf("%s:%d", p.Host, p.Port)})
	}
	go pingmonitor.New(pingPools, pools).Run(ctx)

	var apiServer *api.Server
	if !*noAPI {
		// The Redis client is deliberately boxed into the SnapshotCacher interface
		// only when non-nil: an interface holding a nil *redis.Client would
		// compare non-nil, defeating metricsSnapshotCache's disable check.
		var cache api.SnapshotCacher
		if cfg.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				log.Printf("[WARN] api: invalid TUNNEL_REDIS_URL, metrics caching disabled: %v", err)
			} else {
				opts.PoolSize = 10
				opts.DialTimeout = 5 * time.Second
				opts.ReadTimeout = 3 * time.Second
				opts.WriteTimeout = 3 * time.Second
				cache = redis.NewClient(opts)
			}
		}

		apiServer = api.NewServer(
			api.ServerConfig{Port: fmt.Sprintf("%d", cfg.APIPort)},
			miners, pools, sysMon, historyLookup, dbSizeReader, cache,
		)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("[ERROR] api: server stopped: %v", err)
			}
		}()
	} else {
		log.Printf("[INFO] HTTP exposition disabled via --noapi")
	}

	waitForShutdown()

	log.Printf("[INFO] shutdown signal received, stopping")
	cancel()

	for _, t := range tunnels {
		t.Close()
	}

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] api: graceful shutdown failed: %v", err)
		}
	}

	log.Printf("[INFO] shutdown complete")
}

func buildTunnels(cfg *config.Config, miners *miner.Registry, pools *poolstats.Registry, sink stratum.PersistenceSink) ([]*stratum.Tunnel, error) {
	tunnels := make([]*stratum.Tunnel, 0, len(cfg.Tunnels))
	for tunnelID, t := range cfg.Tunnels {
		pool, ok := cfg.Pools[t.Pool]
		if !ok {
			return nil, fmt.Errorf("tunnel %q references unknown pool %q", tunnelID, t.Pool)
		}

		tunnels = append(tunnels, &stratum.Tunnel{
			Name:     tunnelID,
			BindAddr: fmt.Sprintf("%s:%d", t.IP, t.Port),
			PoolName: pool.Name,
			PoolAddr: fmt.Sprintf("%s:%d", pool.Host, pool.Port),
			Miners:   miners,
			Pools:    pools,
			Sink:     sink,
		})
	}
	return tunnels, nil
}

func setupPersistence(cfg *config.Config) (*database.Store, *persistence.Adapter, error) {
	dbCfg := &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.DBName,
		Username: cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  "disable",
	}

	if err := database.RunMigrations(dbCfg, "migrations"); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	store := database.NewStore(db)
	adapter := persistence.NewAdapter(store)
	return store, adapter, nil
}

func runRetentionJob(ctx context.Context, store *database.Store) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := store.CleanupOldData(cleanupCtx); err != nil {
				log.Printf("[WARN] retention job failed: %v", err)
			}
			cancel()
		}
	}
}

// runDBHealthCheck pings the pool once a minute so connectivity loss shows
// up in the logs before the next write fails.
func runDBHealthCheck(ctx context.Context, store *database.Store) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Ping(ctx); err != nil {
				log.Printf("[WARN] database health check failed: %v", err)
			}
		}
	}
}

// runTrafficSampler records the aggregate byte/packet counters across all
// live sessions every 5 minutes, feeding the network_traffic time-series
// the retention job trims.
func runTrafficSampler(ctx context.Context, store *database.Store, miners *miner.Registry) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := database.TrafficSample{RecordedAt: time.Now()}
			for _, sess := range miners.Enumerate() {
				snap := sess.Snapshot()
				sample.BytesDownload += snap.BytesDownload
				sample.BytesUpload += snap.BytesUpload
				sample.PacketsSent += snap.PacketsSent
				sample.PacketsReceived += snap.PacketsReceived
			}

			sampleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := store.RecordTrafficSample(sampleCtx, sample); err != nil {
				log.Printf("[WARN] traffic sampler failed: %v", err)
			}
			cancel()
		}
	}
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

type noopSink struct{}

func (noopSink) RecordShare(database.ShareRecord)     {}
func (noopSink) PersistSnapshot(database.MinerSnapshot) {}
