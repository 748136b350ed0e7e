package selection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS selection (
	profile    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (profile, key)
)`

// SQLite stores the selection in a sqlite file, namespaced by client profile.
type SQLite struct {
	db      *sql.DB
	profile string
}

// OpenSQLite opens (creating if needed) the selection database at path for the given profile.
func OpenSQLite(path, profile string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("selection: storage path is required")
	}
	if profile == "" {
		profile = "default"
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("selection: create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cleanPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("selection: open sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("selection: create schema: %w", err)
	}
	return &SQLite{db: db, profile: profile}, nil
}

// Close releases the underlying connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM selection WHERE profile = ? AND key = ?`, s.profile, Key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("selection: get: %w", err)
	}
	return v, nil
}

// Set stores tenantID. An empty id clears the selection.
func (s *SQLite) Set(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return s.Clear(ctx)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO selection (profile, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (profile, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.profile, Key, tenantID, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("selection: set: %w", err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM selection WHERE profile = ? AND key = ?`, s.profile, Key); err != nil {
		return fmt.Errorf("selection: clear: %w", err)
	}
	return nil
}
