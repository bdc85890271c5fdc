package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/repository"
)

// RecordVote writes the ledger row and its derived state in one transaction.
//
// The INSERT is the only "has this voter voted?" check. There is no SELECT
// beforehand, so two concurrent submissions cannot both pass a check and
// then both write: the loser hits the UNIQUE constraint on voter_id and the
// whole transaction rolls back.
func (db *DB) RecordVote(ctx context.Context, v *model.Vote) error {
	if v.ID == "" {
		v.ID = xid.New().String()
	}
	if v.CastAt.IsZero() {
		v.CastAt = time.Now().UTC()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning vote transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO votes (id, voter_id, candidate_id, cast_at) VALUES (?, ?, ?, ?)`,
		v.ID, v.VoterID, v.CandidateID, v.CastAt.UnixNano(),
	)
	if isUniqueViolation(err, "votes.voter_id") {
		return apperror.DuplicateVote()
	}
	if err != nil {
		return fmt.Errorf("sqlite: inserting vote: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET has_voted = 1, voted_for = ?, updated_at = ?
		 WHERE id = ? AND has_voted = 0`,
		v.CandidateID, v.CastAt, v.VoterID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking voter %s: %w", v.VoterID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Identity already flagged as voted; keep the ledger consistent with it.
		return apperror.DuplicateVote()
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE candidates SET vote_count = vote_count + 1 WHERE id = ?`, v.CandidateID)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing tally for %s: %w", v.CandidateID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("candidate", v.CandidateID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing vote: %w", err)
	}
	return nil
}

// Reconcile makes identity flags and tallies agree with the votes table.
func (db *DB) Reconcile(ctx context.Context) (repository.ReconcileReport, error) {
	var report repository.ReconcileReport

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("sqlite: beginning reconcile: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx,
		`UPDATE users
		 SET has_voted = 1,
		     voted_for = (SELECT candidate_id FROM votes WHERE voter_id = users.id),
		     updated_at = ?
		 WHERE id IN (SELECT voter_id FROM votes)
		   AND (has_voted = 0 OR voted_for IS NULL
		        OR voted_for <> (SELECT candidate_id FROM votes WHERE voter_id = users.id))`,
		now)
	if err != nil {
		return report, fmt.Errorf("sqlite: reconciling voters: %w", err)
	}
	n, _ := res.RowsAffected()
	report.Identities += n

	res, err = tx.ExecContext(ctx,
		`UPDATE users SET has_voted = 0, voted_for = NULL, updated_at = ?
		 WHERE (has_voted = 1 OR voted_for IS NOT NULL)
		   AND id NOT IN (SELECT voter_id FROM votes)`,
		now)
	if err != nil {
		return report, fmt.Errorf("sqlite: reconciling non-voters: %w", err)
	}
	n, _ = res.RowsAffected()
	report.Identities += n

	res, err = tx.ExecContext(ctx,
		`UPDATE candidates
		 SET vote_count = (SELECT COUNT(*) FROM votes WHERE candidate_id = candidates.id)
		 WHERE vote_count <> (SELECT COUNT(*) FROM votes WHERE candidate_id = candidates.id)`)
	if err != nil {
		return report, fmt.Errorf("sqlite: reconciling tallies: %w", err)
	}
	report.Candidates, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("sqlite: committing reconcile: %w", err)
	}
	return report, nil
}
