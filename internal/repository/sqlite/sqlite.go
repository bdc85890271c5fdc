// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without CGo and
// tests can use ":memory:" databases with no external service.
//
// CONCURRENCY:
// The pool is capped at one open connection. SQLite serialises writers anyway,
// and a single connection keeps an in-memory database shared by every
// goroutine. The vote ledger does not depend on this: the UNIQUE constraint
// on votes.voter_id is what rejects a second vote, whichever process writes.
// busy_timeout covers other processes holding the file lock.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/ballot/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/ballot.db" → file-based database
//   - ":memory:"       → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Ping checks the connection is still usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent.
//
// Timestamps the code compares against "now" (session and reset-token
// expiry, vote order) are stored as unix integers so comparisons are
// numeric. Audit timestamps use DATETIME.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                   TEXT PRIMARY KEY,
			external_auth_id     TEXT UNIQUE,
			name                 TEXT NOT NULL,
			email                TEXT NOT NULL UNIQUE,
			credential_hash      TEXT NOT NULL DEFAULT '',
			external_profile_url TEXT NOT NULL DEFAULT '',
			has_voted            INTEGER NOT NULL DEFAULT 0,
			voted_for            TEXT,
			reset_token_hash     TEXT,
			reset_token_expiry   INTEGER,
			created_at           DATETIME NOT NULL,
			updated_at           DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token_hash);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS candidates (
			id                   TEXT PRIMARY KEY,
			position             INTEGER NOT NULL,
			name                 TEXT NOT NULL,
			description          TEXT NOT NULL DEFAULT '',
			photo_url            TEXT NOT NULL DEFAULT '',
			external_profile_url TEXT NOT NULL DEFAULT '',
			vote_count           INTEGER NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
			created_at           DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating candidates table: %w", err)
	}

	// voter_id UNIQUE is the ledger's one-vote-per-identity guarantee.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS votes (
			id           TEXT PRIMARY KEY,
			voter_id     TEXT NOT NULL UNIQUE REFERENCES users(id),
			candidate_id TEXT NOT NULL REFERENCES candidates(id),
			cast_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_votes_candidate_id ON votes(candidate_id);
	`)
	if err != nil {
		return fmt.Errorf("creating votes table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE / PRIMARY KEY constraint
// failure. If column is non-empty ("users.email") the failing column must
// match too; SQLite names it in the message.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return false
		}
	} else if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return false
	}
	return column == "" || strings.Contains(err.Error(), column)
}

// nullString maps "" to SQL NULL so optional UNIQUE columns allow many blanks.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
