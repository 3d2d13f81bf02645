package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/trade-sync-service/internal/models"
)

// RecomputeAccountStats rebuilds the derived aggregates for an account from
// the full persisted trade history, not just the latest batch, and upserts
// the result. Running it repeatedly over already-correct data is a no-op.
func (db *DB) RecomputeAccountStats(accountID string) (*models.AccountStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(realized_pnl), 0),
		       COALESCE(SUM(fees), 0),
		       COUNT(*) FILTER (WHERE realized_pnl > 0),
		       COUNT(*) FILTER (WHERE realized_pnl < 0)
		FROM trades
		WHERE account_id = $1
	`
	stats := &models.AccountStats{AccountID: accountID}
	err := db.conn.QueryRow(query, accountID).Scan(
		&stats.TradeCount, &stats.TotalRealizedPnl, &stats.TotalFees,
		&stats.WinCount, &stats.LossCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trades: %w", err)
	}

	upsert := `
		INSERT INTO account_stats (account_id, trade_count, total_realized_pnl, total_fees, win_count, loss_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			trade_count = EXCLUDED.trade_count,
			total_realized_pnl = EXCLUDED.total_realized_pnl,
			total_fees = EXCLUDED.total_fees,
			win_count = EXCLUDED.win_count,
			loss_count = EXCLUDED.loss_count,
			updated_at = EXCLUDED.updated_at
	`
	stats.UpdatedAt = time.Now()
	_, err = db.conn.Exec(upsert,
		stats.AccountID, stats.TradeCount, stats.TotalRealizedPnl,
		stats.TotalFees, stats.WinCount, stats.LossCount, stats.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account stats: %w", err)
	}

	return stats, nil
}

// GetAccountStats retrieves the stored aggregates for an account.
func (db *DB) GetAccountStats(accountID string) (*models.AccountStats, error) {
	query := `
		SELECT account_id, trade_count, total_realized_pnl, total_fees, win_count, loss_count, updated_at
		FROM account_stats
		WHERE account_id = $1
	`
	var stats models.AccountStats
	err := db.conn.QueryRow(query, accountID).Scan(
		&stats.AccountID, &stats.TradeCount, &stats.TotalRealizedPnl,
		&stats.TotalFees, &stats.WinCount, &stats.LossCount, &stats.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no stats for account: %s", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account stats: %w", err)
	}
	return &stats, nil
}
