package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mining-tunnel/tunnel/internal/miner"
)

// MinerView is the per-miner shape rendered by /api/metrics.
type MinerView struct {
	Wallet          string `json:"wallet"`
	DisplayName     string `json:"display_name"`
	IP              string `json:"ip"`
	PoolName        string `json:"pool_name"`
	SharesAccepted  int64  `json:"shares_accepted"`
	SharesRejected  int64  `json:"shares_rejected"`
	CurrentHashrate string `json:"current_hashrate"`
	AverageHashrate string `json:"average_hashrate"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastSeen        time.Time `json:"last_seen"`
}

// PoolView is the per-pool shape rendered by /api/metrics.
type PoolView struct {
	Name            string  `json:"name"`
	CurrentPingMs   float64 `json:"current_ping_ms"`
	AveragePingMs   float64 `json:"average_ping_ms"`
	AvgAcceptTimeMs float64 `json:"avg_accept_time_ms"`
	SharesAccepted  int64   `json:"shares_accepted"`
	SharesRejected  int64   `json:"shares_rejected"`
}

// NetworkTotals is the aggregate byte/packet counters summed across every
// live miner session.
type NetworkTotals struct {
	BytesDownload   int64 `json:"bytes_download"`
	BytesUpload     int64 `json:"bytes_upload"`
	PacketsSent     int64 `json:"packets_sent"`
	PacketsReceived int64 `json:"packets_received"`
}

// MetricsSnapshot is the full body of GET /api/metrics.
type MetricsSnapshot struct {
	CPUModel        string        `json:"cpu_model"`
	CPUCores        int           `json:"cpu_cores"`
	CPUUsagePercent float64       `json:"cpu_usage_percent"`
	RAMTotalBytes   uint64        `json:"ram_total_bytes"`
	RAMUsedBytes    uint64        `json:"ram_used_bytes"`
	DiskTotalBytes  uint64        `json:"disk_total_bytes"`
	DiskUsedBytes   uint64        `json:"disk_used_bytes"`
	OS              string        `json:"os"`
	PublicIP        string        `json:"public_ip"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
	DatabaseBytes   int64         `json:"database_bytes"`
	Network         NetworkTotals `json:"network"`
	Miners          []MinerView   `json:"miners"`
	Pools           []PoolView    `json:"pools"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// handleAPIMetrics serves the cached full snapshot; a cache miss rebuilds
// it from the live registries, the system monitor, and the database size
// reader.
func (s *Server) handleAPIMetrics(c *gin.Context) {
	snap, err := s.snapCache.Get(c.Request.Context(), s.buildMetricsSnapshot)
	if err != nil {
		RespondInternalError(c, "failed to build metrics snapshot")
		return
	}
	RespondJSON(c, http.StatusOK, snap)
}

func (s *Server) buildMetricsSnapshot() (MetricsSnapshot, error) {
	sys := s.sysMon.Snapshot()

	var dbBytes int64
	if s.dbSize != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if size, err := s.dbSize.DatabaseSizeBytes(ctx); err == nil {
			dbBytes = size
		}
		cancel()
	}

	var totals NetworkTotals
	var miners []MinerView
	for _, sess := range s.miners.Enumerate() {
		snap := sess.Snapshot()
		totals.BytesDownload += snap.BytesDownload
		totals.BytesUpload += snap.BytesUpload
		totals.PacketsSent += snap.PacketsSent
		totals.PacketsReceived += snap.PacketsReceived

		miners = append(miners, MinerView{
			Wallet:          snap.Wallet,
			DisplayName:     snap.DisplayName,
			IP:              snap.RemoteIP,
			PoolName:        snap.PoolName,
			SharesAccepted:  snap.SharesAccepted,
			SharesRejected:  snap.SharesRejected,
			CurrentHashrate: miner.FormatHashrate(snap.CurrentHashrate),
			AverageHashrate: miner.FormatHashrate(snap.AverageHashrate),
			ConnectedAt:     snap.ConnectedAt,
			LastSeen:        snap.LastSeen,
		})
	}

	var pools []PoolView
	for _, pm := range s.pools.Enumerate() {
		snap := pm.Snapshot()
		pools = append(pools, PoolView{
			Name:            snap.Name,
			CurrentPingMs:   snap.CurrentPingMs,
			AveragePingMs:   snap.AveragePingMs,
			AvgAcceptTimeMs: snap.AvgAcceptTimeMs,
			SharesAccepted:  snap.SharesAccepted,
			SharesRejected:  snap.SharesRejected,
		})
	}

	return MetricsSnapshot{
		CPUModel:        sys.CPUModel,
		CPUCores:        sys.CPUCores,
		CPUUsagePercent: sys.CPUUsage,
		RAMTotalBytes:   sys.RAMTotal,
		RAMUsedBytes:    sys.RAMUsed,
		DiskTotalBytes:  sys.DiskTotal,
		DiskUsedBytes:   sys.DiskUsed,
		OS:              sys.OS,
		PublicIP:        sys.PublicIP,
		UptimeSeconds:   sys.Uptime.Seconds(),
		DatabaseBytes:   dbBytes,
		Network:         totals,
		Miners:          miners,
		Pools:           pools,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// handleMinerByWalletPrefix returns the first active session whose wallet
// starts with the path prefix, plus historical persisted snapshots.
func (s *Server) handleMinerByWalletPrefix(c *gin.Context) {
	prefix := c.Param("wallet_prefix")

	var active *MinerView
	if sess, ok := s.miners.FindByWalletPrefix(prefix); ok {
		snap := sess.Snapshot()
		active = &MinerView{
			Wallet:          snap.Wallet,
			DisplayName:     snap.DisplayName,
			IP:              snap.RemoteIP,
			PoolName:        snap.PoolName,
			SharesAccepted:  snap.SharesAccepted,
			SharesRejected:  snap.SharesRejected,
			CurrentHashrate: miner.FormatHashrate(snap.CurrentHashrate),
			AverageHashrate: miner.FormatHashrate(snap.AverageHashrate),
			ConnectedAt:     snap.ConnectedAt,
			LastSeen:        snap.LastSeen,
		}
	}

	var history interface{}
	if s.history != nil {
		rows, err := s.history.LookupByWalletPrefix(c.Request.Context(), prefix)
		if err != nil {
			RespondInternalError(c, "failed to read historical snapshots")
			return
		}
		history = rows
	}

	RespondJSON(c, http.StatusOK, gin.H{
		"active":  active,
		"history": history,
	})
}

// handleNetworkStats is reserved: the route does not read the stored
// network_traffic samples and always returns an empty series.
func (s *Server) handleNetworkStats(c *gin.Context) {
	RespondJSON(c, http.StatusOK, gin.H{"series": []interface{}{}})
}

// handleShareStats is reserved in the same sense as handleNetworkStats.
func (s *Server) handleShareStats(c *gin.Context) {
	RespondJSON(c, http.StatusOK, gin.H{"series": []interface{}{}})
}

var logStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleLogsStream upgrades to a WebSocket and holds the connection open.
// The stream payload is not defined yet, so this is an upgrade-and-hold
// stub.
func (s *Server) handleLogsStream(c *gin.Context) {
	conn, err := logStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
