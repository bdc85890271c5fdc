package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/auth"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/repository"
)

const (
	MinPasswordLength = 6
	MaxNameLength     = 100

	msgInvalidProfileURL = "Please enter a valid LinkedIn URL"
)

// AuthService owns identities: local sign-up and login, OAuth logins, and
// the voter's public profile link.
//
//	AuthHandler (HTTP) → AuthService → IdentityRepository (DB)
//	                   ↘ PasswordService (bcrypt)
type AuthService struct {
	identities    repository.IdentityRepository
	passwords     *auth.PasswordService
	profileDomain string
	logger        *slog.Logger
}

// NewAuthService wires the identity rules. profileDomain is the host (for
// example "linkedin.com") that profile URLs must belong to.
func NewAuthService(
	identities repository.IdentityRepository,
	passwords *auth.PasswordService,
	profileDomain string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		identities:    identities,
		passwords:     passwords,
		profileDomain: strings.ToLower(profileDomain),
		logger:        logger,
	}
}

// Register creates a local identity.
//
// There is no "does this email exist?" lookup first. The UNIQUE index on
// email is the only check, so two concurrent sign-ups with the same address
// cannot both succeed; the loser gets EmailTaken from the repository.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*model.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "Name is required")
	}
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name", "Name is too long")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password", "Password must be at least 6 characters")
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password", "Password must be at most 72 bytes")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}

	identity := &model.Identity{
		Name:           name,
		Email:          email,
		CredentialHash: hash,
	}
	if err := s.identities.CreateIdentity(ctx, identity); err != nil {
		return nil, storageError("creating identity", err)
	}

	s.logger.InfoContext(ctx, "identity registered", slog.String("userID", identity.ID))
	return identity, nil
}

// AuthenticateLocal checks an email/password pair.
//
// Unknown email, an OAuth-only account and a wrong password all produce the
// same InvalidCredentials error so the response does not reveal which
// emails are registered.
func (s *AuthService) AuthenticateLocal(ctx context.Context, email, password string) (*model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	identity, err := s.identities.GetIdentityByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.InvalidCredentials()
	}
	if err != nil {
		return nil, storageError("loading identity", err)
	}
	if !identity.HasPassword() {
		return nil, apperror.InvalidCredentials()
	}
	if err := s.passwords.Verify(identity.CredentialHash, password); err != nil {
		return nil, apperror.InvalidCredentials()
	}
	return identity, nil
}

// AuthenticateExternal finds or creates the identity behind an OAuth login.
//
// Lookup order:
//  1. an identity already linked to this provider account
//  2. an identity with the same email, if the provider verified it
//     (linked on the way through when it has no external account yet)
//  3. a new identity with an empty profile URL
//
// Two first-time callbacks for the same account can race at step 3. The
// loser's insert hits a unique index and it falls back to a lookup.
func (s *AuthService) AuthenticateExternal(ctx context.Context, profile *auth.ExternalProfile) (*model.Identity, error) {
	if profile == nil || profile.Provider == "" || profile.Subject == "" {
		return nil, apperror.ValidationFailed("profile", "external profile is incomplete")
	}
	externalID := profile.ExternalID()
	email := strings.ToLower(strings.TrimSpace(profile.Email))

	identity, err := s.identities.GetIdentityByExternalID(ctx, externalID)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, storageError("loading identity by external id", err)
	}

	if profile.EmailVerified && email != "" {
		identity, err := s.linkByEmail(ctx, email, externalID)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
	}

	identity = &model.Identity{
		Name:           strings.TrimSpace(profile.Name),
		Email:          email,
		ExternalAuthID: externalID,
	}
	err = s.identities.CreateIdentity(ctx, identity)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "identity created from external login",
			slog.String("userID", identity.ID),
			slog.String("provider", profile.Provider),
		)
		return identity, nil
	case errors.Is(err, apperror.ErrConflict):
		// Lost the race for this external id.
		identity, err := s.identities.GetIdentityByExternalID(ctx, externalID)
		if err != nil {
			return nil, storageError("reloading identity by external id", err)
		}
		return identity, nil
	case errors.Is(err, apperror.ErrEmailTaken):
		if profile.EmailVerified {
			return s.linkByEmail(ctx, email, externalID)
		}
		return nil, apperror.Conflict("An account with this email already exists. Log in with your password.")
	default:
		return nil, storageError("creating identity", err)
	}
}

// linkByEmail returns the identity registered under email, attaching
// externalID to it when it has no external account yet.
func (s *AuthService) linkByEmail(ctx context.Context, email, externalID string) (*model.Identity, error) {
	identity, err := s.identities.GetIdentityByEmail(ctx, email)
	if err != nil {
		return nil, storageError("loading identity by email", err)
	}
	if identity.ExternalAuthID != "" {
		return identity, nil
	}

	err = s.identities.LinkExternalID(ctx, identity.ID, externalID)
	if err != nil && !errors.Is(err, apperror.ErrConflict) {
		return nil, storageError("linking external id", err)
	}
	if err == nil {
		identity.ExternalAuthID = externalID
		s.logger.InfoContext(ctx, "external login linked", slog.String("userID", identity.ID))
	}
	return identity, nil
}

// UpdateExternalProfile sets the public profile URL shown in the voter
// registry. Concurrent updates are last-write-wins.
func (s *AuthService) UpdateExternalProfile(ctx context.Context, id, rawURL string) (*model.Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}
	profileURL, ok := s.validProfileURL(rawURL)
	if !ok {
		return nil, apperror.ValidationFailed("linkedinUrl", msgInvalidProfileURL)
	}

	identity, err := s.identities.UpdateExternalProfile(ctx, id, profileURL)
	if err != nil {
		return nil, storageError("updating profile url", err)
	}
	return identity, nil
}

// validProfileURL accepts http(s) URLs whose host is the profile domain or
// one of its subdomains ("linkedin.com", "www.linkedin.com", "uk.linkedin.com").
// A substring check would accept "linkedin.com.evil.io".
func (s *AuthService) validProfileURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host != s.profileDomain && !strings.HasSuffix(host, "."+s.profileDomain) {
		return "", false
	}
	return u.String(), true
}

// CurrentUser loads the identity behind a session.
func (s *AuthService) CurrentUser(ctx context.Context, id string) (*model.Identity, error) {
	identity, err := s.identities.GetIdentityByID(ctx, id)
	if err != nil {
		return nil, storageError("loading current user", err)
	}
	return identity, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperror.ValidationFailed("email", "Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "Please enter a valid email address")
	}
	return email, nil
}
