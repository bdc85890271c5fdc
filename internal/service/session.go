package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/auth"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/repository"
)

// SessionService issues and checks login sessions.
//
// A session is a row in the sessions table. The cookie holds a signed JWT
// that names the row (jti) and the user (sub). The signature stops forged
// cookies without a DB hit; the row lets logout and password resets revoke
// a session before the JWT itself expires.
type SessionService struct {
	sessions repository.SessionRepository
	tokens   *auth.TokenService
	ttl      time.Duration
	logger   *slog.Logger
	now      clock
}

func NewSessionService(
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	ttl time.Duration,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		tokens:   tokens,
		ttl:      ttl,
		logger:   logger,
		now:      utcNow,
	}
}

// CreateSession starts a session for userID and returns the cookie value.
func (s *SessionService) CreateSession(ctx context.Context, userID string) (string, time.Time, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return "", time.Time{}, storageError("creating session", err)
	}

	token, err := s.tokens.Generate(session.ID, userID, session.ExpiresAt)
	if err != nil {
		return "", time.Time{}, apperror.Unavailable(msgUnavailable, err)
	}
	return token, session.ExpiresAt, nil
}

// ResolveSession implements auth.SessionResolver.
func (s *SessionService) ResolveSession(ctx context.Context, token string) (string, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return "", apperror.Unauthorized("Your session has expired. Please log in again.")
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID, s.now())
	if errors.Is(err, apperror.ErrNotFound) {
		return "", apperror.Unauthorized("Your session has expired. Please log in again.")
	}
	if err != nil {
		return "", storageError("loading session", err)
	}
	if session.UserID != claims.UserID {
		s.logger.WarnContext(ctx, "session cookie names a different user",
			slog.String("sessionID", session.ID),
		)
		return "", apperror.Unauthorized("Your session has expired. Please log in again.")
	}
	return session.UserID, nil
}

// DestroySession ends the session behind a cookie. An invalid or already
// ended session is not an error.
func (s *SessionService) DestroySession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
		return storageError("deleting session", err)
	}
	return nil
}

// RevokeAll ends every session of userID.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteSessionsForUser(ctx, userID); err != nil {
		return storageError("deleting sessions", err)
	}
	return nil
}
