package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mining-tunnel/tunnel/internal/miner"
	"github.com/mining-tunnel/tunnel/internal/poolstats"
	"github.com/mining-tunnel/tunnel/internal/sysmetrics"
)

type fakeSysMon struct{ snap sysmetrics.Snapshot }

func (f fakeSysMon) Snapshot() sysmetrics.Snapshot { return f.snap }

func TestRefreshSetsPoolAndMinerGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	miners := miner.NewRegistry()
	pools := poolstats.NewRegistry()
	sysMon := fakeSysMon{snap: sysmetrics.Snapshot{CPUCores: 8, RAMTotal: 1 << 30}}

	sess := miner.New("127.0.0.1", "5000", "pool1")
	sess.Authorize("walletABC.rig1")
	sess.RecordSubmit("job1")
	sess.AcceptShare()
	miners.Insert(sess)

	pm := pools.GetOrCreate("pool1")
	pm.AddPingSample(42)
	pm.IncrementAccepted()

	c := NewCollector(reg, miners, pools, sysMon)
	c.Refresh()

	families, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]*io_prometheus_client.MetricFamily{}
	for _, f := range families {
		found[f.GetName()] = f
	}

	require.Contains(t, found, "mining_tunnel_active_miners")
	assert.Equal(t, float64(1), found["mining_tunnel_active_miners"].Metric[0].GetGauge().GetValue())

	require.Contains(t, found, "mining_tunnel_pool_shares_total")
	var sawAccepted bool
	for _, m := range found["mining_tunnel_pool_shares_total"].Metric {
		for _, lp := range m.Label {
			if lp.GetName() == "status" && lp.GetValue() == "accepted" {
				sawAccepted = true
				assert.Equal(t, float64(1), m.GetGauge().GetValue())
			}
		}
	}
	assert.True(t, sawAccepted, "expected an accepted-status series for pool1")

	require.Contains(t, found, "mining_tunnel_miner_hashrate")
	var sawWallet bool
	for _, m := range found["mining_tunnel_miner_hashrate"].Metric {
		for _, lp := range m.Label {
			if lp.GetName() == "wallet" && strings.HasPrefix(lp.GetValue(), "walletABC") {
				sawWallet = true
			}
		}
	}
	assert.True(t, sawWallet, "expected a hashrate series for the authorized wallet")
}

func TestRefreshSkipsUnauthorizedMiners(t *testing.T) {
	reg := prometheus.NewRegistry()
	miners := miner.NewRegistry()
	pools := poolstats.NewRegistry()
	sysMon := fakeSysMon{}

	miners.Insert(miner.New("127.0.0.1", "5001", "pool1"))

	c := NewCollector(reg, miners, pools, sysMon)
	c.Refresh()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() == "mining_tunnel_miner_hashrate" {
			assert.Empty(t, f.Metric, "unauthorized sessions have no wallet label and must be skipped")
		}
	}
}
