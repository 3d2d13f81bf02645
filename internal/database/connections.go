package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/trade-sync-service/internal/models"
)

// CreateConnection registers a new broker connection with an empty sync
// cursor.
func (db *DB) CreateConnection(c *models.Connection) error {
	query := `
		INSERT INTO connections (account_id, broker, api_base_url, api_key, last_sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query,
		c.AccountID, c.Broker, c.APIBaseURL, c.APIKey, models.SyncStatusNever, now, now,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	c.LastSyncStatus = models.SyncStatusNever
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// GetConnectionByID retrieves one broker connection.
func (db *DB) GetConnectionByID(id int) (*models.Connection, error) {
	query := `
		SELECT id, account_id, broker, api_base_url, api_key,
		       last_sync_at, last_sync_status, last_sync_error, created_at, updated_at
		FROM connections
		WHERE id = $1
	`
	c, err := scanConnection(db.conn.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connection not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

// GetAllConnections retrieves every registered broker connection.
func (db *DB) GetAllConnections() ([]*models.Connection, error) {
	query := `
		SELECT id, account_id, broker, api_base_url, api_key,
		       last_sync_at, last_sync_status, last_sync_error, created_at, updated_at
		FROM connections
		ORDER BY id ASC
	`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get connections: %w", err)
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, c)
	}
	return connections, rows.Err()
}

// UpdateConnectionSyncStatus records the outcome of one sync run. lastSyncAt
// is only written when non-nil: a failed run keeps the previous cursor so the
// next run refetches the same window.
func (db *DB) UpdateConnectionSyncStatus(id int, lastSyncAt *time.Time, status, syncError string) error {
	var (
		result sql.Result
		err    error
	)
	if lastSyncAt != nil {
		query := `
			UPDATE connections
			SET last_sync_at = $2, last_sync_status = $3, last_sync_error = $4, updated_at = $5
			WHERE id = $1
		`
		result, err = db.conn.Exec(query, id, *lastSyncAt, status, syncError, time.Now())
	} else {
		query := `
			UPDATE connections
			SET last_sync_status = $2, last_sync_error = $3, updated_at = $4
			WHERE id = $1
		`
		result, err = db.conn.Exec(query, id, status, syncError, time.Now())
	}
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("connection not found: %d", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var c models.Connection
	var lastSyncAt sql.NullTime
	var lastSyncError sql.NullString

	err := row.Scan(
		&c.ID, &c.AccountID, &c.Broker, &c.APIBaseURL, &c.APIKey,
		&lastSyncAt, &c.LastSyncStatus, &lastSyncError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSyncAt.Valid {
		t := lastSyncAt.Time
		c.LastSyncAt = &t
	}
	if lastSyncError.Valid {
		c.LastSyncError = lastSyncError.String
	}
	return &c, nil
}
