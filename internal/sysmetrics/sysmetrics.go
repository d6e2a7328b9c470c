// Package sysmetrics maintains a periodically refreshed snapshot of host
// resource usage (CPU, RAM, disk, uptime, public IP) for the /api/metrics
// and /metrics surfaces.
package sysmetrics

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

const refreshInterval = 5 * time.Second

// Snapshot is an immutable copy of the most recently refreshed system
// metrics, safe to read from the HTTP surface without synchronization.
type Snapshot struct {
	CPUModel     string
	CPUCores     int
	CPUUsage     float64
	RAMTotal     uint64
	RAMUsed      uint64
	DiskTotal    uint64
	DiskUsed     uint64
	OS           string
	PublicIP     string
	Uptime       time.Duration
	ActiveMiners int
}

// ActiveMinerCounter is satisfied by *miner.Registry.
type ActiveMinerCounter interface {
	Count() int
}

// Monitor owns the current snapshot and a background refresher. Public IP
// lookup is resolved once at startup since it rarely changes and a failed
// lookup is not worth retrying every tick.
type Monitor struct {
	miners ActiveMinerCounter

	mu        sync.RWMutex
	current   Snapshot
	startedAt time.Time
}

// New builds a Monitor with a best-effort initial snapshot. Public IP
// resolution happens here, once, via a single outbound HTTP call.
func New(miners ActiveMinerCounter) *Monitor {
	m := &Monitor{
		miners:    miners,
		startedAt: time.Now(),
	}

	cpuModel, cpuCores := readCPUIdentity()
	osName := readOSName()
	publicIP := fetchPublicIP()

	m.current = Snapshot{
		CPUModel: cpuModel,
		CPUCores: cpuCores,
		OS:       osName,
		PublicIP: publicIP,
	}

	return m
}

// Run refreshes the snapshot every 5 seconds until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh()
		}
	}
}

func (m *Monitor) refresh() {
	usage, err := cpu.Percent(0, false)
	var cpuUsage float64
	if err == nil && len(usage) > 0 {
		cpuUsage = usage[0]
	} else if err != nil {
		log.Printf("[WARN] sysmetrics: cpu.Percent failed: %v", err)
	}

	var ramTotal, ramUsed uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		ramTotal, ramUsed = vm.Total, vm.Used
	} else {
		log.Printf("[WARN] sysmetrics: mem.VirtualMemory failed: %v", err)
	}

	var diskTotal, diskUsed uint64
	if usageStat, err := disk.Usage("/"); err == nil {
		diskTotal, diskUsed = usageStat.Total, usageStat.Used
	} else {
		log.Printf("[WARN] sysmetrics: disk.Usage failed: %v", err)
	}

	m.mu.Lock()
	m.current.CPUUsage = cpuUsage
	m.current.RAMTotal = ramTotal
	m.current.RAMUsed = ramUsed
	m.current.DiskTotal = diskTotal
	m.current.DiskUsed = diskUsed
	m.current.Uptime = time.Since(m.startedAt)
	m.current.ActiveMiners = m.miners.Count()
	m.mu.Unlock()
}

// Snapshot returns a read-consistent copy of the current metrics.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func readCPUIdentity() (model string, cores int) {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		log.Printf("[WARN] sysmetrics: cpu.Info failed: %v", err)
		return "Unknown", 0
	}
	counted, err := cpu.Counts(true)
	if err != nil {
		counted = len(infos)
	}
	return infos[0].ModelName, counted
}

func readOSName() string {
	info, err := host.Info()
	if err != nil {
		log.Printf("[WARN] sysmetrics: host.Info failed: %v", err)
		return "Unknown"
	}
	return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
}

// fetchPublicIP is a best-effort, one-shot lookup; a failure just leaves
// the field as "Unknown" rather than blocking startup.
func fetchPublicIP() string {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("https://api.ipify.org?format=text")
	if err != nil {
		log.Printf("[WARN] sysmetrics: public IP lookup failed: %v", err)
		return "Unknown"
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil || len(body) == 0 {
		return "Unknown"
	}
	return string(body)
}
