package poolstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPingWindowCapsAndAverages(t *testing.T) {
	m := New("pool1")

	for i := 1; i <= 150; i++ {
		m.AddPingSample(float64(i))
	}

	snap := m.Snapshot()
	assert.Equal(t, 100, snap.PingSampleCount)

	// Samples 51..150 survive (the last 100 of 1..150).
	var sum float64
	for i := 51; i <= 150; i++ {
		sum += float64(i)
	}
	want := sum / 100
	assert.InDelta(t, want, snap.AveragePingMs, 1e-9)
}

func TestAcceptTimeWindowCaps(t *testing.T) {
	m := New("pool1")
	for i := 0; i < 120; i++ {
		m.AddAcceptTimeSample(10)
	}
	snap := m.Snapshot()
	assert.Len(t, m.acceptTimes, 100)
	assert.InDelta(t, 10.0, snap.AvgAcceptTimeMs, 1e-9)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("pool1")
	b := r.GetOrCreate("pool1")
	assert.Same(t, a, b)
	assert.Len(t, r.Enumerate(), 1)
}
