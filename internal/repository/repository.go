// Package repository declares the storage contracts of the ballot backend.
//
// Both backends (sqlite and postgres) implement every interface here on a
// single *DB type, and the backend is chosen once at startup from config.
// Services depend only on these interfaces.
//
// ERROR CONTRACT:
// Implementations translate the cases callers must branch on into
// apperror kinds (NotFound, EmailTaken, DuplicateVote, InvalidToken,
// Conflict). Everything else is returned wrapped with the backend name and
// treated as a storage failure by the service layer.
package repository

import (
	"context"
	"time"

	"github.com/sakif/ballot/internal/model"
)

type IdentityRepository interface {
	// CreateIdentity inserts a new identity and fills in ID and timestamps.
	// A duplicate email yields apperror.ErrEmailTaken; a duplicate external
	// auth id yields apperror.ErrConflict.
	CreateIdentity(ctx context.Context, identity *model.Identity) error
	GetIdentityByID(ctx context.Context, id string) (*model.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error)
	GetIdentityByExternalID(ctx context.Context, externalID string) (*model.Identity, error)
	// LinkExternalID attaches an external auth id to an identity that has none.
	LinkExternalID(ctx context.Context, id, externalID string) error
	UpdateExternalProfile(ctx context.Context, id, profileURL string) (*model.Identity, error)
	// ListVoters returns identities with a recorded vote, oldest vote first.
	ListVoters(ctx context.Context) ([]model.Voter, error)

	SetResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error
	// ConsumeResetToken replaces the credential hash and clears the token in a
	// single conditional update. It returns the identity id, or
	// apperror.ErrInvalidToken if no unexpired token matches.
	ConsumeResetToken(ctx context.Context, tokenHash, credentialHash string, now time.Time) (string, error)
}

type CandidateRepository interface {
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
	GetCandidateByID(ctx context.Context, id string) (*model.Candidate, error)
	// ReplaceCandidates swaps the whole ballot. It fails with
	// apperror.ErrConflict once any vote has been recorded.
	ReplaceCandidates(ctx context.Context, candidates []model.Candidate) error
}

// ReconcileReport counts the rows a reconciliation pass corrected.
type ReconcileReport struct {
	Identities int64
	Candidates int64
}

type VoteRepository interface {
	// RecordVote inserts the vote, marks the voter and increments the
	// candidate tally atomically. If the voter already has a vote it returns
	// apperror.ErrDuplicateVote and changes nothing.
	RecordVote(ctx context.Context, vote *model.Vote) error
	// Reconcile rebuilds identity vote flags and candidate tallies from the
	// votes table.
	Reconcile(ctx context.Context) (ReconcileReport, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	// GetSession returns apperror.ErrNotFound for unknown or expired sessions.
	GetSession(ctx context.Context, id string, now time.Time) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsForUser(ctx context.Context, userID string) error
}

// Store is everything a backend provides.
type Store interface {
	IdentityRepository
	CandidateRepository
	VoteRepository
	SessionRepository
	Ping(ctx context.Context) error
	Close() error
}
