package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/auth"
	"github.com/sakif/ballot/internal/notify"
	"github.com/sakif/ballot/internal/repository"
)

const (
	ResetTokenTTL   = time.Hour
	resetTokenBytes = 20
)

// ResetService runs the forgotten-password flow.
//
// TOKENS:
// The emailed token is 20 random bytes, hex encoded. Only its SHA-256 is
// stored, so a leaked database row cannot be used to reset anyone. Consuming
// a token is one conditional UPDATE that also clears it, so a token works
// exactly once even under concurrent submissions.
type ResetService struct {
	identities  repository.IdentityRepository
	sessions    *SessionService
	passwords   *auth.PasswordService
	notifier    notify.Notifier
	frontendURL string
	logger      *slog.Logger
	now         clock
}

func NewResetService(
	identities repository.IdentityRepository,
	sessions *SessionService,
	passwords *auth.PasswordService,
	notifier notify.Notifier,
	frontendURL string,
	logger *slog.Logger,
) *ResetService {
	return &ResetService{
		identities:  identities,
		sessions:    sessions,
		passwords:   passwords,
		notifier:    notifier,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
		now:         utcNow,
	}
}

// RequestReset emails a reset link if email belongs to an identity.
//
// The caller answers with the same message whether or not the email exists.
// Delivery failures are logged and swallowed for the same reason: an error
// here would tell the caller the address is registered.
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperror.ValidationFailed("email", "Email is required")
	}

	identity, err := s.identities.GetIdentityByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		s.logger.DebugContext(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return storageError("loading identity", err)
	}

	token, err := newResetToken()
	if err != nil {
		return apperror.Unavailable(msgUnavailable, err)
	}
	expiresAt := s.now().Add(ResetTokenTTL)
	if err := s.identities.SetResetToken(ctx, identity.ID, hashResetToken(token), expiresAt); err != nil {
		return storageError("storing reset token", err)
	}

	err = s.notifier.SendPasswordReset(ctx, notify.PasswordReset{
		To:        identity.Email,
		Name:      identity.Name,
		Link:      s.frontendURL + "/reset-password/" + token,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset",
			slog.String("userID", identity.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.logger.InfoContext(ctx, "password reset sent", slog.String("userID", identity.ID))
	return nil
}

// ConsumeReset sets a new password using a reset token, then logs the
// identity out everywhere.
func (s *ResetService) ConsumeReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperror.InvalidToken()
	}
	if len(newPassword) < MinPasswordLength {
		return apperror.ValidationFailed("password", "Password must be at least 6 characters")
	}
	if len(newPassword) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password", "Password must be at most 72 bytes")
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return apperror.Unavailable(msgUnavailable, err)
	}

	userID, err := s.identities.ConsumeResetToken(ctx, hashResetToken(token), hash, s.now())
	if err != nil {
		return storageError("consuming reset token", err)
	}

	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		// The password already changed; stale sessions still expire on their own.
		s.logger.ErrorContext(ctx, "failed to revoke sessions after reset",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset completed", slog.String("userID", userID))
	return nil
}

func newResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
