package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/repository"
)

// VoteLedger records votes. Each identity gets at most one.
//
// THE ONE-VOTE RULE:
// The ledger never asks "has this voter voted?" before writing. It inserts
// the vote and lets the UNIQUE constraint on votes.voter_id decide. A
// read-then-write check would let two concurrent requests both see "not
// voted" and both write; the constraint cannot be raced.
//
// The existence checks on voter and candidate below are only there to give a
// clean 404 instead of a foreign key error. They do not guard the rule.
type VoteLedger struct {
	votes      repository.VoteRepository
	identities repository.IdentityRepository
	candidates repository.CandidateRepository
	logger     *slog.Logger
}

func NewVoteLedger(
	votes repository.VoteRepository,
	identities repository.IdentityRepository,
	candidates repository.CandidateRepository,
	logger *slog.Logger,
) *VoteLedger {
	return &VoteLedger{
		votes:      votes,
		identities: identities,
		candidates: candidates,
		logger:     logger,
	}
}

// SubmitVote records voterID's vote for candidateID.
//
// Retrying after an Unavailable error is safe: if the first attempt did
// commit, the retry fails with DuplicateVote and changes nothing.
func (l *VoteLedger) SubmitVote(ctx context.Context, voterID, candidateID string) (*model.Vote, error) {
	voterID = strings.TrimSpace(voterID)
	candidateID = strings.TrimSpace(candidateID)
	if voterID == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}
	if candidateID == "" {
		return nil, apperror.ValidationFailed("candidateId", "candidateId is required")
	}

	if _, err := l.identities.GetIdentityByID(ctx, voterID); err != nil {
		return nil, storageError("loading voter", err)
	}
	if _, err := l.candidates.GetCandidateByID(ctx, candidateID); err != nil {
		return nil, storageError("loading candidate", err)
	}

	vote := &model.Vote{VoterID: voterID, CandidateID: candidateID}
	if err := l.votes.RecordVote(ctx, vote); err != nil {
		if errors.Is(err, apperror.ErrDuplicateVote) {
			l.logger.InfoContext(ctx, "duplicate vote rejected", slog.String("voterID", voterID))
			return nil, err
		}
		l.logger.ErrorContext(ctx, "failed to record vote",
			slog.String("voterID", voterID),
			slog.String("candidateID", candidateID),
			slog.String("error", err.Error()),
		)
		return nil, storageError("recording vote", err)
	}

	l.logger.InfoContext(ctx, "vote recorded",
		slog.String("voteID", vote.ID),
		slog.String("voterID", voterID),
		slog.String("candidateID", candidateID),
	)
	return vote, nil
}
