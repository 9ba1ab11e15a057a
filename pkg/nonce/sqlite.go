package nonce

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteChecker persists observed tuples in sqlite so replay protection
// survives restarts. Winner selection rides on the table's primary key:
// exactly one concurrent insert of a tuple takes effect.
type SQLiteChecker struct {
	db     *sql.DB
	maxAge time.Duration
	done   chan struct{}
	once   sync.Once
}

// NewSQLiteChecker opens (or creates) the nonce store at dbPath. Entries
// expire after maxAge; a background sweep deletes expired rows.
func NewSQLiteChecker(dbPath string, maxAge time.Duration) (*SQLiteChecker, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open nonce store: %w", err)
	}

	// WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS seen_nonces (
			tuple TEXT PRIMARY KEY,
			seen_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_seen_nonces_seen_at ON seen_nonces(seen_at)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return nil, fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	c := &SQLiteChecker{
		db:     db,
		maxAge: maxAge,
		done:   make(chan struct{}),
	}
	go c.sweep()
	return c, nil
}

// CheckAndRemember implements Checker.
func (c *SQLiteChecker) CheckAndRemember(macKeyIdentifier, ts, nonce string) (bool, error) {
	key := tupleKey(macKeyIdentifier, ts, nonce)
	now := time.Now()

	result, err := c.db.Exec(
		"INSERT OR IGNORE INTO seen_nonces (tuple, seen_at) VALUES (?, ?)",
		key, now)
	if err != nil {
		return false, fmt.Errorf("failed to save nonce: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to save nonce: %w", err)
	}
	if inserted > 0 {
		return true, nil
	}

	// The tuple exists; it only wins if the existing row has expired and the
	// sweep has not collected it yet.
	result, err = c.db.Exec(
		"UPDATE seen_nonces SET seen_at = ? WHERE tuple = ? AND seen_at < ?",
		now, key, now.Add(-c.maxAge))
	if err != nil {
		return false, fmt.Errorf("failed to refresh nonce: %w", err)
	}
	refreshed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to refresh nonce: %w", err)
	}
	return refreshed > 0, nil
}

func (c *SQLiteChecker) sweep() {
	ticker := time.NewTicker(c.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-c.maxAge)
			c.db.Exec("DELETE FROM seen_nonces WHERE seen_at < ?", cutoff)
		case <-c.done:
			return
		}
	}
}

// Close implements Checker.
func (c *SQLiteChecker) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.db.Close()
}
