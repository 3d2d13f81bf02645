package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sync status values recorded on a connection after each orchestrator run.
const (
	SyncStatusNever   = "never"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Connection is one broker account link plus its sync cursor. LastSyncAt is
// only advanced on a fully successful run; a failed run records status and
// error but leaves the cursor untouched so the next run refetches the same
// window.
type Connection struct {
	ID             int        `json:"id"`
	AccountID      string     `json:"account_id"`
	Broker         string     `json:"broker"`
	APIBaseURL     string     `json:"api_base_url"`
	APIKey         string     `json:"-"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus string     `json:"last_sync_status"`
	LastSyncError  string     `json:"last_sync_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AccountStats are derived aggregates recomputed from the full persisted trade
// history after each successful sync. Recomputation is idempotent.
type AccountStats struct {
	AccountID        string          `json:"account_id"`
	TradeCount       int             `json:"trade_count"`
	TotalRealizedPnl decimal.Decimal `json:"total_realized_pnl"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	WinCount         int             `json:"win_count"`
	LossCount        int             `json:"loss_count"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
