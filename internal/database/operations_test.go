package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestRecordShareInsertsRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO shares")).
		WithArgs("w1", "rig1", "1.2.3.4", "pool1", "job42", true, 1024.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordShare(context.Background(), ShareRecord{
		Wallet:      "w1",
		MinerName:   "rig1",
		IP:          "1.2.3.4",
		PoolName:    "pool1",
		JobID:       "job42",
		Accepted:    true,
		Difficulty:  1024,
		SubmittedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistSnapshotUpsertsAdditively(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (wallet, ip, miner_name) DO UPDATE SET")).
		WithArgs(
			"w1", "rig1", "1.2.3.4", "pool1",
			int64(3), int64(1),
			int64(100), int64(200), int64(10), int64(20),
			55.5, 50.0, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.PersistSnapshot(context.Background(), MinerSnapshot{
		Wallet:          "w1",
		MinerName:       "rig1",
		IP:              "1.2.3.4",
		PoolName:        "pool1",
		SharesAccepted:  3,
		SharesRejected:  1,
		BytesDownload:   100,
		BytesUpload:     200,
		PacketsSent:     10,
		PacketsReceived: 20,
		CurrentHashrate: 55.5,
		AverageHashrate: 50.0,
		ConnectedAt:     time.Now(),
		LastSeen:        time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupByWalletPrefixScansRows(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"wallet", "miner_name", "ip", "pool_name",
		"shares_accepted", "shares_rejected",
		"bytes_download", "bytes_upload", "packets_sent", "packets_received",
		"current_hashrate", "average_hashrate", "connected_at", "last_seen",
	}).AddRow("wallet123", "rig1", "1.2.3.4", "pool1", int64(5), int64(0), int64(1), int64(2), int64(3), int64(4), 10.0, 9.0, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM miners")).
		WithArgs("wallet%").
		WillReturnRows(rows)

	results, err := store.LookupByWalletPrefix(context.Background(), "wallet")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "wallet123", results[0].Wallet)
	assert.EqualValues(t, 5, results[0].SharesAccepted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTrafficSampleInsertsRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO network_traffic")).
		WithArgs(sqlmock.AnyArg(), int64(100), int64(200), int64(10), int64(20)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.RecordTrafficSample(context.Background(), TrafficSample{
		RecordedAt:      time.Now(),
		BytesDownload:   100,
		BytesUpload:     200,
		PacketsSent:     10,
		PacketsReceived: 20,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOldDataPurgesBothTables(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shares WHERE submitted_at")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM network_traffic WHERE recorded_at")).
		WillReturnResult(sqlmock.NewResult(0, 7))

	err := store.CleanupOldData(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseSizeBytesReadsScalar(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("pg_database_size")).
		WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow(int64(123456)))

	size, err := store.DatabaseSizeBytes(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 123456, size)
	require.NoError(t, mock.ExpectationsWereMet())
}
