// Package persistence implements the write-only adapter the dataplane uses
// to hand off shares and session snapshots to durable storage without ever
// blocking a connection pump on a slow store.
package persistence

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/mining-tunnel/tunnel/internal/database"
)

const (
	defaultQueueCapacity = 1024
	writeTimeout         = 5 * time.Second
)

// shareRecorder and snapshotStore are satisfied by *database.Store; kept
// as interfaces here so the dataplane never imports database/sql directly.
type shareRecorder interface {
	RecordShare(ctx context.Context, share database.ShareRecord) error
}

type snapshotStore interface {
	PersistSnapshot(ctx context.Context, snap database.MinerSnapshot) error
	LookupByWalletPrefix(ctx context.Context, prefix string) ([]database.MinerSnapshot, error)
}

// Adapter is the bounded, fire-and-forget persistence queue mandated by the
// design notes: shares and snapshots each have a buffered channel drained
// by its own dedicated writer goroutine; on overflow the oldest pending item is dropped and counted, rather than
// blocking the caller or growing without bound.
type Adapter struct {
	store shareRecorder
	snaps snapshotStore

	shareCh chan database.ShareRecord
	snapCh  chan database.MinerSnapshot

	droppedShares    int64
	droppedSnapshots int64

	stop chan struct{}
}

// Store is the minimal interface an Adapter needs; *database.Store
// satisfies it directly.
type Store interface {
	shareRecorder
	snapshotStore
}

// NewAdapter starts the writer goroutines and returns a ready Adapter.
// Call Close to stop them during shutdown; queued items are not flushed.
func NewAdapter(store Store) *Adapter {
	a := &Adapter{
		store:   store,
		snaps:   store,
		shareCh: make(chan database.ShareRecord, defaultQueueCapacity),
		snapCh:  make(chan database.MinerSnapshot, defaultQueueCapacity),
		stop:    make(chan struct{}),
	}

	go a.runShareWriter()
	go a.runSnapshotWriter()

	return a
}

// RecordShare enqueues a share for asynchronous insertion. It never blocks:
// if the queue is full, the oldest pending share is dropped to make room.
func (a *Adapter) RecordShare(share database.ShareRecord) {
	for {
		select {
		case a.shareCh <- share:
			return
		default:
			select {
			case <-a.shareCh:
				atomic.AddInt64(&a.droppedShares, 1)
				log.Printf("[WARN] persistence: share queue full, dropped oldest (total dropped=%d)", atomic.LoadInt64(&a.droppedShares))
			default:
			}
		}
	}
}

// PersistSnapshot enqueues a session's delta-since-last-persist counters.
// Same drop-oldest overflow policy as RecordShare.
func (a *Adapter) PersistSnapshot(snap database.MinerSnapshot) {
	for {
		select {
		case a.snapCh <- snap:
			return
		default:
			select {
			case <-a.snapCh:
				atomic.AddInt64(&a.droppedSnapshots, 1)
				log.Printf("[WARN] persistence: snapshot queue full, dropped oldest (total dropped=%d)", atomic.LoadInt64(&a.droppedSnapshots))
			default:
			}
		}
	}
}

// LookupByWalletPrefix is the one synchronous read the HTTP surface needs;
// it bypasses the write queue entirely.
func (a *Adapter) LookupByWalletPrefix(ctx context.Context, prefix string) ([]database.MinerSnapshot, error) {
	return a.snaps.LookupByWalletPrefix(ctx, prefix)
}

// Dropped returns the lifetime count of dropped shares and snapshots, for
// diagnostics/metrics.
func (a *Adapter) Dropped() (shares, snapshots int64) {
	return atomic.LoadInt64(&a.droppedShares), atomic.LoadInt64(&a.droppedSnapshots)
}

// Close stops accepting new writer work. In-flight queued items are
// abandoned; persistence failures are already logged-and-dropped by design.
func (a *Adapter) Close() {
	close(a.stop)
}

func (a *Adapter) runShareWriter() {
	for {
		select {
		case <-a.stop:
			return
		case share := <-a.shareCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := a.store.RecordShare(ctx, share); err != nil {
				log.Printf("[WARN] persistence: record_share failed, dropping: %v", err)
			}
			cancel()
		}
	}
}

func (a *Adapter) runSnapshotWriter() {
	for {
		select {
		case <-a.stop:
			return
		case snap := <-a.snapCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := a.snaps.PersistSnapshot(ctx, snap); err != nil {
				log.Printf("[WARN] persistence: persist_snapshot failed, dropping: %v", err)
			}
			cancel()
		}
	}
}
