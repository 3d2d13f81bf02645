package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-sync-service/internal/models"
)

// TradeExistsByBrokerID reports whether a trade with the given idempotency
// key has already been persisted. This is the dedup check run before staging
// a reconciled trade for insert.
func (db *DB) TradeExistsByBrokerID(brokerTradeID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM trades WHERE broker_trade_id = $1)`
	if err := db.conn.QueryRow(query, brokerTradeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return exists, nil
}

// InsertTradeBatch persists a batch of reconciled trades and their exit
// levels in one transaction. The batch is all-or-nothing: a failure rolls the
// whole batch back, and the unique index on broker_trade_id guards against
// concurrent duplicate inserts regardless of the in-memory dedup check.
func (db *DB) InsertTradeBatch(trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertTrade := `
		INSERT INTO trades (
			account_id, symbol, direction, quantity, avg_entry_price,
			avg_exit_price, realized_pnl, fees, entry_timestamp,
			exit_timestamp, broker_trade_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	insertLevel := `
		INSERT INTO exit_levels (trade_id, fill_id, quantity, price, realized_pnl, exit_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now()
	for _, t := range trades {
		err := tx.QueryRow(insertTrade,
			t.AccountID, t.Symbol, t.Direction, t.Quantity, t.AvgEntryPrice,
			t.AvgExitPrice, t.RealizedPnl, t.Fees, t.EntryTimestamp,
			t.ExitTimestamp, t.BrokerTradeID, now,
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("failed to insert trade %s: %w", t.BrokerTradeID, err)
		}
		t.CreatedAt = now

		for i := range t.ExitLevels {
			lvl := &t.ExitLevels[i]
			lvl.TradeID = t.ID
			var pnl interface{}
			if lvl.RealizedPnl.Valid {
				pnl = lvl.RealizedPnl.Decimal
			}
			if _, err := tx.Exec(insertLevel,
				t.ID, lvl.FillID, lvl.Quantity, lvl.Price, pnl, lvl.Timestamp,
			); err != nil {
				return fmt.Errorf("failed to insert exit level for trade %s: %w", t.BrokerTradeID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade batch: %w", err)
	}
	return nil
}

// GetTradesByAccount returns persisted trades for an account, newest first.
func (db *DB) GetTradesByAccount(accountID string, limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, account_id, symbol, direction, quantity, avg_entry_price,
		       avg_exit_price, realized_pnl, fees, entry_timestamp,
		       exit_timestamp, broker_trade_id, created_at
		FROM trades
		WHERE account_id = $1
		ORDER BY exit_timestamp DESC
	`
	args := []interface{}{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		var t models.Trade
		err := rows.Scan(
			&t.ID, &t.AccountID, &t.Symbol, &t.Direction, &t.Quantity,
			&t.AvgEntryPrice, &t.AvgExitPrice, &t.RealizedPnl, &t.Fees,
			&t.EntryTimestamp, &t.ExitTimestamp, &t.BrokerTradeID, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}

	return trades, nil
}

// GetExitLevels returns the partial-exit detail rows for one trade.
func (db *DB) GetExitLevels(tradeID int64) ([]models.ExitLevel, error) {
	query := `
		SELECT id, trade_id, fill_id, quantity, price, realized_pnl, exit_timestamp
		FROM exit_levels
		WHERE trade_id = $1
		ORDER BY exit_timestamp ASC, id ASC
	`
	rows, err := db.conn.Query(query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exit levels: %w", err)
	}
	defer rows.Close()

	var levels []models.ExitLevel
	for rows.Next() {
		var lvl models.ExitLevel
		var pnl sql.NullString
		err := rows.Scan(&lvl.ID, &lvl.TradeID, &lvl.FillID, &lvl.Quantity, &lvl.Price, &pnl, &lvl.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exit level: %w", err)
		}
		if pnl.Valid {
			if v, err := decimal.NewFromString(pnl.String); err == nil {
				lvl.RealizedPnl = decimal.NullDecimal{Decimal: v, Valid: true}
			}
		}
		levels = append(levels, lvl)
	}

	return levels, nil
}
