package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions across process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between writers
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS node_sessions (
    host TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, host string) (Record, error) {
	key, err := normalizeKey(host)
	if err != nil {
		return Record{}, err
	}
	var (
		id      string
		updated int64
	)
	row := s.db.QueryRowContext(ctx, `SELECT session_id, updated_at FROM node_sessions WHERE host = ?`, key)
	if err := row.Scan(&id, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("session: get %s: %w", key, err)
	}
	return Record{SessionID: id, UpdatedAt: time.UnixMilli(updated).UTC()}, nil
}

func (s *SQLiteStore) SetSession(ctx context.Context, host string, rec Record) error {
	key, err := normalizeKey(host)
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO node_sessions (host, session_id, updated_at) VALUES (?, ?, ?)
ON CONFLICT(host) DO UPDATE SET session_id = excluded.session_id, updated_at = excluded.updated_at`,
		key, rec.SessionID, rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("session: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, host string) error {
	key, err := normalizeKey(host)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM node_sessions WHERE host = ?`, key); err != nil {
		return fmt.Errorf("session: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
