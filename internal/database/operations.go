package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store is a thin repository over a *sql.DB implementing the persistence
// adapter's narrow write/read contract.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-connected, already-pinged database handle
// (see Open).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection pool can still reach the database.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// RecordShare inserts one append-only share row.
func (s *Store) RecordShare(ctx context.Context, share ShareRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO shares (wallet, miner_name, ip, pool_name, job_id, accepted, difficulty, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		share.Wallet, share.MinerName, share.IP, share.PoolName,
		share.JobID, share.Accepted, share.Difficulty, share.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record share: %w", err)
	}

	return nil
}

// PersistSnapshot upserts a session's delta-since-last-persist counters.
// Counters are additive (existing + new); rates, pool_name, and last_seen
// are latest-wins.
func (s *Store) PersistSnapshot(ctx context.Context, snap MinerSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO miners (
			wallet, miner_name, ip, pool_name,
			shares_accepted, shares_rejected,
			bytes_download, bytes_upload, packets_sent, packets_received,
			current_hashrate, average_hashrate, connected_at, last_seen
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (wallet, ip, miner_name) DO UPDATE SET
			shares_accepted   = miners.shares_accepted + excluded.shares_accepted,
			shares_rejected   = miners.shares_rejected + excluded.shares_rejected,
			bytes_download    = miners.bytes_download + excluded.bytes_download,
			bytes_upload      = miners.bytes_upload + excluded.bytes_upload,
			packets_sent      = miners.packets_sent + excluded.packets_sent,
			packets_received  = miners.packets_received + excluded.packets_received,
			current_hashrate  = excluded.current_hashrate,
			average_hashrate  = excluded.average_hashrate,
			last_seen         = excluded.last_seen,
			pool_name         = excluded.pool_name
	`

	_, err := s.db.ExecContext(ctx, query,
		snap.Wallet, snap.MinerName, snap.IP, snap.PoolName,
		snap.SharesAccepted, snap.SharesRejected,
		snap.BytesDownload, snap.BytesUpload, snap.PacketsSent, snap.PacketsReceived,
		snap.CurrentHashrate, snap.AverageHashrate, snap.ConnectedAt, snap.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to persist miner snapshot: %w", err)
	}

	return nil
}

// LookupByWalletPrefix returns every persisted miner row whose wallet
// begins with prefix, for the /api/i/:wallet_prefix historical view.
func (s *Store) LookupByWalletPrefix(ctx context.Context, prefix string) ([]MinerSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT wallet, miner_name, ip, pool_name,
			shares_accepted, shares_rejected,
			bytes_download, bytes_upload, packets_sent, packets_received,
			current_hashrate, average_hashrate, connected_at, last_seen
		FROM miners
		WHERE wallet LIKE $1
		ORDER BY last_seen DESC
	`

	rows, err := s.db.QueryContext(ctx, query, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query miners by wallet prefix: %w", err)
	}
	defer rows.Close()

	var results []MinerSnapshot
	for rows.Next() {
		var snap MinerSnapshot
		if err := rows.Scan(
			&snap.Wallet, &snap.MinerName, &snap.IP, &snap.PoolName,
			&snap.SharesAccepted, &snap.SharesRejected,
			&snap.BytesDownload, &snap.BytesUpload, &snap.PacketsSent, &snap.PacketsReceived,
			&snap.CurrentHashrate, &snap.AverageHashrate, &snap.ConnectedAt, &snap.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("failed to scan miner snapshot: %w", err)
		}
		results = append(results, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating miner snapshots: %w", err)
	}

	return results, nil
}

// RecordTrafficSample appends one aggregate traffic row, feeding the
// time-series the retention job later trims.
func (s *Store) RecordTrafficSample(ctx context.Context, sample TrafficSample) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO network_traffic (recorded_at, bytes_download, bytes_upload, packets_sent, packets_received)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		sample.RecordedAt, sample.BytesDownload, sample.BytesUpload,
		sample.PacketsSent, sample.PacketsReceived,
	)
	if err != nil {
		return fmt.Errorf("failed to record traffic sample: %w", err)
	}

	return nil
}

// CleanupOldData purges shares older than 365 days and network traffic
// samples older than 180 days. Postgres autovacuum reclaims space; no
// explicit compaction step is needed here.
func (s *Store) CleanupOldData(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE submitted_at < NOW() - INTERVAL '365 days'`); err != nil {
		return fmt.Errorf("failed to purge old shares: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM network_traffic WHERE recorded_at < NOW() - INTERVAL '180 days'`); err != nil {
		return fmt.Errorf("failed to purge old network traffic: %w", err)
	}

	return nil
}

// DatabaseSizeBytes reports the logical size of the connected database
// for the /api/metrics storage block.
func (s *Store) DatabaseSizeBytes(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var size int64
	err := s.db.QueryRowContext(ctx, `SELECT pg_database_size(current_database())`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to read database size: %w", err)
	}
	return size, nil
}
