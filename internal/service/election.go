package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/repository"
)

// ElectionService serves the read side of the election (ballot and voter
// registry) and the admin operations run from cmd/seed and cmd/reconcile.
type ElectionService struct {
	candidates repository.CandidateRepository
	identities repository.IdentityRepository
	votes      repository.VoteRepository
	logger     *slog.Logger
}

func NewElectionService(
	candidates repository.CandidateRepository,
	identities repository.IdentityRepository,
	votes repository.VoteRepository,
	logger *slog.Logger,
) *ElectionService {
	return &ElectionService{
		candidates: candidates,
		identities: identities,
		votes:      votes,
		logger:     logger,
	}
}

// ListCandidates returns the ballot in seed order with current tallies.
func (s *ElectionService) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	candidates, err := s.candidates.ListCandidates(ctx)
	if err != nil {
		return nil, storageError("listing candidates", err)
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}
	return candidates, nil
}

// ListVoters returns the public registry of everyone who has voted. It never
// says who they voted for.
func (s *ElectionService) ListVoters(ctx context.Context) ([]model.Voter, error) {
	voters, err := s.identities.ListVoters(ctx)
	if err != nil {
		return nil, storageError("listing voters", err)
	}
	if voters == nil {
		voters = []model.Voter{}
	}
	return voters, nil
}

// SeedCandidates replaces the ballot. The repository refuses with Conflict
// once any vote exists.
func (s *ElectionService) SeedCandidates(ctx context.Context, candidates []model.Candidate) error {
	if len(candidates) == 0 {
		return apperror.ValidationFailed("candidates", "at least one candidate is required")
	}
	seen := make(map[string]bool, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return apperror.ValidationFailed("name", fmt.Sprintf("candidate %d has no name", i+1))
		}
		if c.ID != "" {
			if seen[c.ID] {
				return apperror.ValidationFailed("id", fmt.Sprintf("candidate id %q is used twice", c.ID))
			}
			seen[c.ID] = true
		}
	}

	if err := s.candidates.ReplaceCandidates(ctx, candidates); err != nil {
		return storageError("replacing candidates", err)
	}
	s.logger.InfoContext(ctx, "candidates seeded", slog.Int("count", len(candidates)))
	return nil
}

// Reconcile rebuilds derived vote state from the votes table.
func (s *ElectionService) Reconcile(ctx context.Context) (repository.ReconcileReport, error) {
	report, err := s.votes.Reconcile(ctx)
	if err != nil {
		return report, storageError("reconciling", err)
	}
	s.logger.InfoContext(ctx, "reconcile finished",
		slog.Int64("identitiesFixed", report.Identities),
		slog.Int64("candidatesFixed", report.Candidates),
	)
	return report, nil
}
