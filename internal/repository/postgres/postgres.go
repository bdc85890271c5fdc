// Package postgres implements the repository interfaces on PostgreSQL via
// lib/pq. Use it when several server processes share one database.
//
// The schema mirrors the sqlite backend. Timestamps are TIMESTAMPTZ here
// because Postgres compares them natively.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sakif/ballot/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type DB struct {
	conn *sql.DB
}

// New connects using a libpq connection string or URL and migrates the schema.
func New(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id                   TEXT PRIMARY KEY,
				external_auth_id     TEXT UNIQUE,
				name                 TEXT NOT NULL,
				email                TEXT NOT NULL UNIQUE,
				credential_hash      TEXT NOT NULL DEFAULT '',
				external_profile_url TEXT NOT NULL DEFAULT '',
				has_voted            BOOLEAN NOT NULL DEFAULT FALSE,
				voted_for            TEXT,
				reset_token_hash     TEXT,
				reset_token_expiry   TIMESTAMPTZ,
				created_at           TIMESTAMPTZ NOT NULL,
				updated_at           TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token_hash);`},
		{"candidates", `
			CREATE TABLE IF NOT EXISTS candidates (
				id                   TEXT PRIMARY KEY,
				position             INTEGER NOT NULL,
				name                 TEXT NOT NULL,
				description          TEXT NOT NULL DEFAULT '',
				photo_url            TEXT NOT NULL DEFAULT '',
				external_profile_url TEXT NOT NULL DEFAULT '',
				vote_count           BIGINT NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
				created_at           TIMESTAMPTZ NOT NULL
			);`},
		{"votes", `
			CREATE TABLE IF NOT EXISTS votes (
				id           TEXT PRIMARY KEY,
				voter_id     TEXT NOT NULL REFERENCES users(id),
				candidate_id TEXT NOT NULL REFERENCES candidates(id),
				cast_at      TIMESTAMPTZ NOT NULL,
				CONSTRAINT votes_voter_id_key UNIQUE (voter_id)
			);
			CREATE INDEX IF NOT EXISTS idx_votes_candidate_id ON votes(candidate_id);`},
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);`},
	}

	for _, s := range statements {
		if _, err := db.conn.ExecContext(ctx, s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}
	return nil
}

// isUniqueViolation reports a 23505 error, optionally on a specific
// constraint ("users_email_key").
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
