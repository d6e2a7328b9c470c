// Package pingmonitor periodically measures TCP connect latency against
// every configured pool and feeds the samples into poolstats.
package pingmonitor

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/mining-tunnel/tunnel/internal/poolstats"
)

const (
	probeInterval = 30 * time.Second
	dialTimeout   = 5 * time.Second
)

// Pool is the minimal description a probe needs.
type Pool struct {
	Name string
	Addr string
}

// Monitor runs one concurrent probe per pool on every tick, skipping a
// pool's probe if its previous one is still in flight.
type Monitor struct {
	pools    []Pool
	registry *poolstats.Registry

	inFlight []int32
}

// New builds a Monitor for the given pools.
func New(pools []Pool, registry *poolstats.Registry) *Monitor {
	return &Monitor{
		pools:    pools,
		registry: registry,
		inFlight: make([]int32, len(pools)),
	}
}

// Run ticks every 30 seconds until ctx is cancelled, launching one probe
// goroutine per pool per tick.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	for i, pool := range m.pools {
		if !atomic.CompareAndSwapInt32(&m.inFlight[i], 0, 1) {
			continue
		}
		go func(idx int, p Pool) {
			defer atomic.StoreInt32(&m.inFlight[idx], 0)
			m.probe(p)
		}(i, pool)
	}
}

func (m *Monitor) probe(pool Pool) {
	start := time.Now()
	conn, err := net.DialTimeout("tcp", pool.Addr, dialTimeout)
	if err != nil {
		return
	}
	conn.Close()

	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
	m.registry.GetOrCreate(pool.Name).AddPingSample(latencyMs)
}
