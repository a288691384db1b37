package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/subwatch/subwatch/internal/model"
)

// Ensure SQLiteStore implements model.SessionStore.
var _ model.SessionStore = (*SQLiteStore)(nil)

// SQLiteStore persists the session bundle so a restarted process can resume
// without re-authenticating, subject to the usual TTL check. At most one
// bundle row exists at a time.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the session table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS session_bundle (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		token       TEXT NOT NULL,
		cookie      TEXT NOT NULL,
		identity    TEXT NOT NULL,
		obtained_at INTEGER NOT NULL,
		ttl_seconds INTEGER NOT NULL
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session_bundle table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load returns the persisted bundle, or ok=false if none has been saved.
func (s *SQLiteStore) Load() (*model.SessionBundle, bool, error) {
	var (
		token, cookie, identity string
		obtainedAt, ttlSeconds  int64
	)
	err := s.db.QueryRow(
		"SELECT token, cookie, identity, obtained_at, ttl_seconds FROM session_bundle WHERE id = 1",
	).Scan(&token, &cookie, &identity, &obtainedAt, &ttlSeconds)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading session bundle: %w", err)
	}

	return &model.SessionBundle{
		Token:      token,
		Cookie:     cookie,
		Identity:   identity,
		ObtainedAt: time.Unix(obtainedAt, 0),
		TTL:        time.Duration(ttlSeconds) * time.Second,
	}, true, nil
}

// Save replaces the persisted bundle wholesale.
func (s *SQLiteStore) Save(bundle *model.SessionBundle) error {
	_, err := s.db.Exec(
		`INSERT INTO session_bundle (id, token, cookie, identity, obtained_at, ttl_seconds)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   token = excluded.token,
		   cookie = excluded.cookie,
		   identity = excluded.identity,
		   obtained_at = excluded.obtained_at,
		   ttl_seconds = excluded.ttl_seconds`,
		bundle.Token, bundle.Cookie, bundle.Identity,
		bundle.ObtainedAt.Unix(), int64(bundle.TTL.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("saving session bundle: %w", err)
	}
	return nil
}

// Clear deletes the persisted bundle. A no-op if none exists.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM session_bundle WHERE id = 1"); err != nil {
		return fmt.Errorf("clearing session bundle: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
