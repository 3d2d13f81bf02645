package database

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/trade-sync-service/internal/models"
)

func TestUpdateConnectionSyncStatus_Success(t *testing.T) {
	db, mock := newMockDB(t)
	syncedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`last_sync_at = $2`)).
		WithArgs(1, syncedAt, models.SyncStatusSuccess, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.UpdateConnectionSyncStatus(1, &syncedAt, models.SyncStatusSuccess, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConnectionSyncStatus_ErrorKeepsCursor(t *testing.T) {
	db, mock := newMockDB(t)

	// No last_sync_at column in the statement when the run failed.
	mock.ExpectExec(regexp.QuoteMeta(`SET last_sync_status = $2`)).
		WithArgs(1, models.SyncStatusError, "fetch failed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.UpdateConnectionSyncStatus(1, nil, models.SyncStatusError, "fetch failed")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConnectionSyncStatus_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE connections`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.UpdateConnectionSyncStatus(99, nil, models.SyncStatusError, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection not found")
}

func TestGetConnectionByID(t *testing.T) {
	db, mock := newMockDB(t)
	lastSync := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "account_id", "broker", "api_base_url", "api_key",
		"last_sync_at", "last_sync_status", "last_sync_error", "created_at", "updated_at",
	}).AddRow(1, "acct-1", "testbroker", "https://api.example.com", "key",
		lastSync, models.SyncStatusSuccess, nil, time.Now(), time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM connections`).
		WithArgs(1).
		WillReturnRows(rows)

	conn, err := db.GetConnectionByID(1)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", conn.AccountID)
	require.NotNil(t, conn.LastSyncAt)
	assert.True(t, conn.LastSyncAt.Equal(lastSync))
	assert.Empty(t, conn.LastSyncError)
}

func TestRecomputeAccountStats(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "pnl", "fees", "wins", "losses"}).
			AddRow(12, "345.5", "18.2", 8, 4))
	mock.ExpectExec(`INSERT INTO account_stats`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats, err := db.RecomputeAccountStats("acct-1")
	require.NoError(t, err)
	assert.Equal(t, 12, stats.TradeCount)
	assert.Equal(t, 8, stats.WinCount)
	assert.Equal(t, "345.5", stats.TotalRealizedPnl.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
