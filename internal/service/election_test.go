package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/model"
)

func TestListCandidates_EmptyIsNotNil(t *testing.T) {
	ts := newTestServices(t)

	got, err := ts.election.ListCandidates(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListVoters(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	ballot := ts.seedBallot(t)
	ann := ts.register(t, "Ann", "ann@x.com")
	bob := ts.register(t, "Bob", "bob@x.com")
	ts.register(t, "Cy", "cy@x.com")

	_, err := ts.auth.UpdateExternalProfile(ctx, ann.ID, "https://www.linkedin.com/in/ann")
	require.NoError(t, err)
	_, err = ts.ledger.SubmitVote(ctx, ann.ID, ballot[0].ID)
	require.NoError(t, err)
	_, err = ts.ledger.SubmitVote(ctx, bob.ID, ballot[1].ID)
	require.NoError(t, err)

	voters, err := ts.election.ListVoters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Bob"}, sortedNames(voters))
	assert.Contains(t, voters, model.Voter{Name: "Ann", ExternalProfileURL: "https://www.linkedin.com/in/ann"})
}

func TestListVoters_StorageFailure(t *testing.T) {
	ts := newTestServices(t)
	ts.store.failWith = errors.New("connection refused")

	_, err := ts.election.ListVoters(context.Background())
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
}

func TestSeedCandidates(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		candidates []model.Candidate
		wantErr    error
	}{
		{"empty list", nil, apperror.ErrValidation},
		{"blank name", []model.Candidate{{Name: " "}}, apperror.ErrValidation},
		{"duplicate id", []model.Candidate{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}, apperror.ErrValidation},
		{"valid", []model.Candidate{{ID: "a", Name: "A"}, {Name: "B"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ts.election.SeedCandidates(ctx, tt.candidates)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSeedCandidates_RefusedAfterVoting(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	ballot := ts.seedBallot(t)
	ann := ts.register(t, "Ann", "ann@x.com")
	_, err := ts.ledger.SubmitVote(ctx, ann.ID, ballot[0].ID)
	require.NoError(t, err)

	err = ts.election.SeedCandidates(ctx, []model.Candidate{{Name: "Late Entry"}})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestReconcile(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	ballot := ts.seedBallot(t)
	ann := ts.register(t, "Ann", "ann@x.com")
	_, err := ts.ledger.SubmitVote(ctx, ann.ID, ballot[0].ID)
	require.NoError(t, err)

	// Simulate drift written by another tool.
	ts.store.mu.Lock()
	ts.store.identities[ann.ID].HasVoted = false
	ts.store.candidates[1].VoteCount = 5
	ts.store.mu.Unlock()

	report, err := ts.election.Reconcile(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Identities)
	assert.EqualValues(t, 1, report.Candidates)

	report, err = ts.election.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Identities+report.Candidates, "a second pass has nothing to fix")
}
