// Package journal is a small local SQLite store with two jobs: remembering
// which transactions have already been ingested (so re-delivered alert
// emails are idempotent) and holding registered push-notification tokens.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal implements service.Journal and service.TokenStore.
type Journal struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the journal database and applies
// migrations.
func Open(dbPath string) (*Journal, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	j := &Journal{db: db, dbPath: dbPath}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Seen reports whether a transaction hash has already been ingested.
func (j *Journal) Seen(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, fmt.Errorf("hash cannot be empty")
	}

	var count int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_transactions WHERE hash = ?`, hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query seen transactions: %w", err)
	}
	return count > 0, nil
}

// MarkSeen records a transaction hash. Marking the same hash twice is not
// an error.
func (j *Journal) MarkSeen(ctx context.Context, hash string) error {
	if hash == "" {
		return fmt.Errorf("hash cannot be empty")
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_transactions (hash, first_seen) VALUES (?, ?)`,
		hash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark transaction seen: %w", err)
	}
	return nil
}

// RegisterToken stores a push-notification destination, reactivating it if
// it was previously deactivated.
func (j *Journal) RegisterToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO device_tokens (token, registered_at, active)
		VALUES (?, ?, 1)
		ON CONFLICT(token) DO UPDATE SET active = 1`,
		token, time.Now())
	if err != nil {
		return fmt.Errorf("failed to register token: %w", err)
	}
	return nil
}

// ActiveTokens returns every active push destination.
func (j *Journal) ActiveTokens(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT token FROM device_tokens WHERE active = 1 ORDER BY registered_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	return tokens, nil
}

// DeactivateToken marks a destination inactive; used when the push backend
// reports the token invalid or unregistered.
func (j *Journal) DeactivateToken(ctx context.Context, token string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE device_tokens SET active = 0 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}
	return nil
}
