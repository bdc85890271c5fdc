// Package auth provides session tokens, password hashing, OAuth providers and
// the HTTP middleware that resolves the caller's identity.
//
// SESSION FLOW:
//  1. Login (local or OAuth) creates a row in the sessions table.
//  2. The server signs a JWT whose ID ("jti") is the session row's ID and
//     whose subject is the identity ID, and sets it as an HttpOnly cookie.
//  3. On each request LoadSession verifies the signature, then asks the
//     session store whether that row still exists and is unexpired.
//
// The signature alone is not enough: logout and password reset delete the
// row, and the cookie stops working immediately even though the JWT itself
// has not expired.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "ballot"

// TokenService signs and verifies session cookies with HMAC-SHA256.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// Example: SESSION_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// SessionClaims is what a valid cookie identifies.
type SessionClaims struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

// Generate signs a cookie value for the given session.
func (s *TokenService) Generate(sessionID, userID string, expiresAt time.Time) (string, error) {
	c := jwt.RegisteredClaims{
		ID:        sessionID,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a cookie value.
//
// jwt.WithValidMethods pins HS256 so a token with alg "none" or an
// asymmetric algorithm is rejected before the key is used.
func (s *TokenService) Validate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" || c.ID == "" {
		return nil, fmt.Errorf("auth: token is missing subject or session id")
	}

	return &SessionClaims{
		SessionID: c.ID,
		UserID:    c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
