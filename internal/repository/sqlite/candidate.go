package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/model"
)

const candidateColumns = `id, name, description, photo_url, external_profile_url, vote_count, created_at`

func scanCandidate(row rowScanner) (*model.Candidate, error) {
	var c model.Candidate
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.PhotoURL,
		&c.ExternalProfileURL,
		&c.VoteCount,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCandidates returns the ballot in seed order.
func (db *DB) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing candidates: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty ballot encodes as [] rather than null.
	candidates := []model.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning candidate: %w", err)
		}
		candidates = append(candidates, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating candidates: %w", err)
	}
	return candidates, nil
}

func (db *DB) GetCandidateByID(ctx context.Context, id string) (*model.Candidate, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("candidate", id)
		}
		return nil, fmt.Errorf("sqlite: getting candidate %s: %w", id, err)
	}
	return c, nil
}

// ReplaceCandidates clears the ballot and inserts the given candidates, all in
// one transaction. It refuses once voting has started because votes reference
// candidate ids.
func (db *DB) ReplaceCandidates(ctx context.Context, candidates []model.Candidate) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning seed transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	var votes int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes`).Scan(&votes); err != nil {
		return fmt.Errorf("sqlite: counting votes: %w", err)
	}
	if votes > 0 {
		return apperror.Conflict("cannot replace candidates after voting has started")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM candidates`); err != nil {
		return fmt.Errorf("sqlite: clearing candidates: %w", err)
	}

	now := time.Now().UTC()
	for i := range candidates {
		c := &candidates[i]
		if c.ID == "" {
			c.ID = xid.New().String()
		}
		c.VoteCount = 0
		c.CreatedAt = now
		_, err := tx.ExecContext(ctx,
			`INSERT INTO candidates (id, position, name, description, photo_url, external_profile_url, vote_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
			c.ID, i, c.Name, c.Description, c.PhotoURL, c.ExternalProfileURL, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting candidate %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing seed: %w", err)
	}
	return nil
}
