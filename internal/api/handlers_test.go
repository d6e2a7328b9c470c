package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mining-tunnel/tunnel/internal/miner"
	"github.com/mining-tunnel/tunnel/internal/poolstats"
	"github.com/mining-tunnel/tunnel/internal/sysmetrics"
)

type fakeSysMon struct{ snap sysmetrics.Snapshot }

func (f fakeSysMon) Snapshot() sysmetrics.Snapshot { return f.snap }

func newTestServer(t *testing.T) (*Server, *miner.Registry, *poolstats.Registry) {
	t.Helper()
	miners := miner.NewRegistry()
	pools := poolstats.NewRegistry()
	sysMon := fakeSysMon{snap: sysmetrics.Snapshot{
		CPUModel: "Test CPU",
		CPUCores: 4,
		OS:       "TestOS 1.0",
		PublicIP: "203.0.113.5",
	}}

	s := NewServer(ServerConfig{Port: "0"}, miners, pools, sysMon, nil, nil, nil)
	return s, miners, pools
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAPIMetricsRendersMinersAndPools(t *testing.T) {
	s, miners, pools := newTestServer(t)

	sess := miner.New("10.0.0.1", "4000", "Example Pool")
	sess.Authorize("w1.rig")
	miners.Insert(sess)
	pools.GetOrCreate("Example Pool").AddPingSample(12)

	w := doRequest(s, http.MethodGet, "/api/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var snap MetricsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))

	require.Len(t, snap.Miners, 1)
	assert.Equal(t, "w1", snap.Miners[0].Wallet)
	assert.Equal(t, "0 H/s", snap.Miners[0].CurrentHashrate)

	require.Len(t, snap.Pools, 1)
	assert.Equal(t, 12.0, snap.Pools[0].CurrentPingMs)
	assert.Equal(t, "203.0.113.5", snap.PublicIP)
}

func TestMinerByWalletPrefixFindsActiveSession(t *testing.T) {
	s, miners, _ := newTestServer(t)

	sess := miner.New("10.0.0.1", "4000", "Example Pool")
	sess.Authorize("walletABC.rig1")
	miners.Insert(sess)

	w := doRequest(s, http.MethodGet, "/api/i/walletA")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Active *MinerView `json:"active"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Active)
	assert.Equal(t, "walletABC", body.Active.Wallet)
}

func TestMinerByWalletPrefixNoMatchReturnsNullActive(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/i/nobody")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Active *MinerView `json:"active"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body.Active)
}

func TestReservedStatsRoutesReturnEmptySeries(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, path := range []string{"/api/network/stats?hours=24", "/api/shares/stats?wallet=w1&hours=24"} {
		w := doRequest(s, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"series":[]}`, w.Body.String(), path)
	}
}

func TestPrometheusEndpointExposesGauges(t *testing.T) {
	s, miners, _ := newTestServer(t)
	miners.Insert(miner.New("10.0.0.1", "4000", "Example Pool"))

	w := doRequest(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mining_tunnel_active_miners 1")
}

func TestCORSHeadersOnEveryRoute(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/health")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = doRequest(s, http.MethodOptions, "/api/metrics")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
