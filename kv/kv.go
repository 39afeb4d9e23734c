// Package kv is a small sqlite-backed key-value store used as the
// persistent tier of the snapshot cache and the preview cache. Values are
// JSON blobs; the store itself does not interpret them.
package kv

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// WAL mode allows concurrent readers with a single writer.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("kv store ready", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the value for key. The second return is false when the key is
// absent or the read failed; callers degrade to "no cached value" either way.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		slog.Warn("kv read failed", "key", key, "error", err)
		return "", false
	}
	return value, true
}

// DeleteOlderThan removes keys under prefix whose last write predates
// cutoff (unix seconds). Used by the cleaner to bound preview cache growth.
func (s *Store) DeleteOlderThan(ctx context.Context, prefix string, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key LIKE ? || '%' AND updated_at < ?`, prefix, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune %q keys: %w", prefix, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Set writes the value for key. Best-effort: failures are logged, never
// returned.
func (s *Store) Set(ctx context.Context, key, value string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		slog.Warn("kv write failed", "key", key, "error", err)
	}
}
