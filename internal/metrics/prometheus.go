// Package metrics exposes the tunnel's gauges through the standard
// Prometheus client registry for the /metrics text endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mining-tunnel/tunnel/internal/miner"
	"github.com/mining-tunnel/tunnel/internal/poolstats"
	"github.com/mining-tunnel/tunnel/internal/sysmetrics"
)

// SystemSnapshotter supplies the current host metrics; satisfied by
// *sysmetrics.Monitor.
type SystemSnapshotter interface {
	Snapshot() sysmetrics.Snapshot
}

// Collector registers and refreshes the gauges served by the /metrics
// text endpoint: uptime, active miners, host resource usage, and
// per-pool/per-miner vectors.
type Collector struct {
	uptime        prometheus.Gauge
	activeMiners  prometheus.Gauge
	cpuUsage      prometheus.Gauge
	cpuCores      prometheus.Gauge
	ramBytes      *prometheus.GaugeVec
	poolPing      *prometheus.GaugeVec
	poolShares    *prometheus.GaugeVec
	minerHashrate *prometheus.GaugeVec

	miners *miner.Registry
	pools  *poolstats.Registry
	sysMon SystemSnapshotter
}

// NewCollector builds and registers a Collector against reg.
func NewCollector(reg *prometheus.Registry, miners *miner.Registry, pools *poolstats.Registry, sysMon SystemSnapshotter) *Collector {
	c := &Collector{
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mining_tunnel_uptime_seconds",
			Help: "Seconds since process start.",
		}),
		activeMiners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mining_tunnel_active_miners",
			Help: "Number of live miner sessions.",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mining_tunnel_cpu_usage_percent",
			Help: "Host CPU utilization percentage.",
		}),
		cpuCores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mining_tunnel_cpu_cores",
			Help: "Number of logical CPU cores on the host.",
		}),
		ramBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mining_tunnel_ram_bytes",
			Help: "Host RAM in bytes.",
		}, []string{"type"}),
		poolPing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mining_tunnel_pool_ping_ms",
			Help: "Pool TCP connect latency in milliseconds.",
		}, []string{"pool", "type"}),
		poolShares: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mining_tunnel_pool_shares_total",
			Help: "Cumulative shares routed through a pool.",
		}, []string{"pool", "status"}),
		minerHashrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mining_tunnel_miner_hashrate",
			Help: "Per-miner estimated hashrate.",
		}, []string{"wallet", "miner", "type"}),

		miners: miners,
		pools:  pools,
		sysMon: sysMon,
	}

	reg.MustRegister(c.uptime, c.activeMiners, c.cpuUsage, c.cpuCores, c.ramBytes, c.poolPing, c.poolShares, c.minerHashrate)
	return c
}

// Refresh recomputes every gauge from the live registries. Called
// synchronously just before each /metrics scrape is served, since the
// cost of walking both registries is small relative to scrape intervals.
func (c *Collector) Refresh() {
	sys := c.sysMon.Snapshot()
	c.uptime.Set(sys.Uptime.Seconds())
	c.activeMiners.Set(float64(c.miners.Count()))
	c.cpuUsage.Set(sys.CPUUsage)
	c.cpuCores.Set(float64(sys.CPUCores))
	c.ramBytes.WithLabelValues("total").Set(float64(sys.RAMTotal))
	c.ramBytes.WithLabelValues("used").Set(float64(sys.RAMUsed))

	for _, pm := range c.pools.Enumerate() {
		snap := pm.Snapshot()
		c.poolPing.WithLabelValues(snap.Name, "current").Set(snap.CurrentPingMs)
		c.poolPing.WithLabelValues(snap.Name, "average").Set(snap.AveragePingMs)
		c.poolShares.WithLabelValues(snap.Name, "accepted").Set(float64(snap.SharesAccepted))
		c.poolShares.WithLabelValues(snap.Name, "rejected").Set(float64(snap.SharesRejected))
	}

	for _, sess := range c.miners.Enumerate() {
		snap := sess.Snapshot()
		if snap.Wallet == "" {
			continue
		}
		c.minerHashrate.WithLabelValues(snap.Wallet, snap.DisplayName, "current").Set(snap.CurrentHashrate)
		c.minerHashrate.WithLabelValues(snap.Wallet, snap.DisplayName, "average").Set(snap.AverageHashrate)
	}
}
