package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/repository"
)

const candidateColumns = `id, name, description, photo_url, external_profile_url, vote_count, created_at`

func scanCandidate(row rowScanner) (*model.Candidate, error) {
	var c model.Candidate
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.PhotoURL, &c.ExternalProfileURL, &c.VoteCount, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing candidates: %w", err)
	}
	defer rows.Close()

	candidates := []model.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning candidate: %w", err)
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

func (db *DB) GetCandidateByID(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := scanCandidate(db.conn.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("candidate", id)
		}
		return nil, fmt.Errorf("postgres: getting candidate %s: %w", id, err)
	}
	return c, nil
}

func (db *DB) ReplaceCandidates(ctx context.Context, candidates []model.Candidate) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	// Blocks concurrent RecordVote inserts until the seed commits.
	if _, err := tx.ExecContext(ctx, `LOCK TABLE votes IN SHARE MODE`); err != nil {
		return fmt.Errorf("postgres: locking votes: %w", err)
	}
	var voted bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM votes)`).Scan(&voted); err != nil {
		return fmt.Errorf("postgres: checking votes: %w", err)
	}
	if voted {
		return apperror.Conflict("cannot replace candidates after voting has started")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM candidates`); err != nil {
		return fmt.Errorf("postgres: clearing candidates: %w", err)
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
			 VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`,
			c.ID, i, c.Name, c.Description, c.PhotoURL, c.ExternalProfileURL, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: inserting candidate %q: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// RecordVote: see the sqlite implementation. Under Postgres a concurrent
// insert for the same voter_id waits on the unique index until the first
// transaction finishes, then fails with 23505.
func (db *DB) RecordVote(ctx context.Context, v *model.Vote) error {
	if v.ID == "" {
		v.ID = xid.New().String()
	}
	if v.CastAt.IsZero() {
		v.CastAt = time.Now().UTC()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: beginning vote transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO votes (id, voter_id, candidate_id, cast_at) VALUES ($1, $2, $3, $4)`,
		v.ID, v.VoterID, v.CandidateID, v.CastAt,
	)
	if isUniqueViolation(err, "votes_voter_id_key") {
		return apperror.DuplicateVote()
	}
	if err != nil {
		return fmt.Errorf("postgres: inserting vote: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET has_voted = TRUE, voted_for = $1, updated_at = $2
		 WHERE id = $3 AND NOT has_voted`,
		v.CandidateID, v.CastAt, v.VoterID,
	)
	if err != nil {
		return fmt.Errorf("postgres: marking voter %s: %w", v.VoterID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.DuplicateVote()
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE candidates SET vote_count = vote_count + 1 WHERE id = $1`, v.CandidateID)
	if err != nil {
		return fmt.Errorf("postgres: incrementing tally for %s: %w", v.CandidateID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("candidate", v.CandidateID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: committing vote: %w", err)
	}
	return nil
}

func (db *DB) Reconcile(ctx context.Context) (repository.ReconcileReport, error) {
	var report repository.ReconcileReport

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("postgres: beginning reconcile: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx,
		`UPDATE users u
		 SET has_voted = TRUE, voted_for = v.candidate_id, updated_at = $1
		 FROM votes v
		 WHERE v.voter_id = u.id
		   AND (NOT u.has_voted OR u.voted_for IS DISTINCT FROM v.candidate_id)`,
		now)
	if err != nil {
		return report, fmt.Errorf("postgres: reconciling voters: %w", err)
	}
	n, _ := res.RowsAffected()
	report.Identities += n

	res, err = tx.ExecContext(ctx,
		`UPDATE users SET has_voted = FALSE, voted_for = NULL, updated_at = $1
		 WHERE (has_voted OR voted_for IS NOT NULL)
		   AND NOT EXISTS (SELECT 1 FROM votes WHERE voter_id = users.id)`,
		now)
	if err != nil {
		return report, fmt.Errorf("postgres: reconciling non-voters: %w", err)
	}
	n, _ = res.RowsAffected()
	report.Identities += n

	res, err = tx.ExecContext(ctx,
		`UPDATE candidates c
		 SET vote_count = t.n
		 FROM (SELECT c2.id, COUNT(v.id) AS n
		       FROM candidates c2 LEFT JOIN votes v ON v.candidate_id = c2.id
		       GROUP BY c2.id) t
		 WHERE t.id = c.id AND c.vote_count <> t.n`)
	if err != nil {
		return report, fmt.Errorf("postgres: reconciling tallies: %w", err)
	}
	report.Candidates, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("postgres: committing reconcile: %w", err)
	}
	return report, nil
}

func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, s.CreatedAt.UTC(), s.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting session: %w", err)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, id string, now time.Time) (*model.Session, error) {
	var s model.Session
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("postgres: getting session: %w", err)
	}
	if s.Expired(now) {
		if err := db.DeleteSession(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperror.NotFound("session", id)
	}
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: deleting session: %w", err)
	}
	return nil
}

func (db *DB) DeleteSessionsForUser(ctx context.Context, userID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("postgres: deleting sessions of %s: %w", userID, err)
	}
	return nil
}
