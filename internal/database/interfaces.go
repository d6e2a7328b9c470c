package database

import (
	"context"
	"time"
)

// ShareWriter records individual share outcomes, fire-and-forget.
type ShareWriter interface {
	RecordShare(ctx context.Context, share ShareRecord) error
}

// MinerSnapshotStore upserts accrued per-session counters and serves the
// wallet-prefix lookup backing the HTTP surface.
type MinerSnapshotStore interface {
	PersistSnapshot(ctx context.Context, snapshot MinerSnapshot) error
	LookupByWalletPrefix(ctx context.Context, prefix string) ([]MinerSnapshot, error)
}

// RetentionPolicy purges data older than the configured horizons.
type RetentionPolicy interface {
	CleanupOldData(ctx context.Context) error
}

// TrafficWriter appends periodic aggregate network-counter samples.
type TrafficWriter interface {
	RecordTrafficSample(ctx context.Context, sample TrafficSample) error
}

// TrafficSample is one point-in-time row in the network_traffic table:
// byte and packet counters summed across every live session at the
// moment the sample was taken.
type TrafficSample struct {
	RecordedAt      time.Time
	BytesDownload   int64
	BytesUpload     int64
	PacketsSent     int64
	PacketsReceived int64
}

// ShareRecord is one append-only row in the shares table.
type ShareRecord struct {
	Wallet      string
	MinerName   string
	IP          string
	PoolName    string
	JobID       string
	Accepted    bool
	Difficulty  float64
	SubmittedAt time.Time
}

// MinerSnapshot is the delta (or, for reads, the cumulative row) persisted
// for a session's (wallet, ip, miner_name) identity.
type MinerSnapshot struct {
	Wallet          string
	MinerName       string
	IP              string
	PoolName        string
	SharesAccepted  int64
	SharesRejected  int64
	BytesDownload   int64
	BytesUpload     int64
	PacketsSent     int64
	PacketsReceived int64
	CurrentHashrate float64
	AverageHashrate float64
	ConnectedAt     time.Time
	LastSeen        time.Time
}
