package sysmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct{ n int }

func (f fakeCounter) Count() int { return f.n }

func TestNewPopulatesStaticFieldsOnly(t *testing.T) {
	m := New(fakeCounter{n: 3})
	snap := m.Snapshot()

	assert.NotEmpty(t, snap.OS)
	assert.Zero(t, snap.RAMTotal, "refresh() has not run yet")
	assert.Zero(t, snap.ActiveMiners, "refresh() has not run yet")
}

func TestRefreshPopulatesActiveMinerCount(t *testing.T) {
	m := New(fakeCounter{n: 7})
	m.refresh()

	snap := m.Snapshot()
	assert.Equal(t, 7, snap.ActiveMiners)
	assert.True(t, snap.Uptime >= 0)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	m := New(fakeCounter{n: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestSnapshotIsConcurrencySafe(t *testing.T) {
	m := New(fakeCounter{n: 2})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			m.refresh()
		}
		close(done)
	}()

	for i := 0; i < 50; i++ {
		_ = m.Snapshot()
	}
	<-done

	require.Equal(t, 2, m.Snapshot().ActiveMiners)
}
