package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/auth"
)

// maxBodyBytes caps every JSON request body. The largest legitimate body is
// a sign-up form.
const maxBodyBytes = 64 << 10

// Typed request bodies, one per endpoint. Unknown fields are ignored so an
// older frontend that sends extras keeps working.

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type submitVoteRequest struct {
	UserID      string `json:"userId"`
	CandidateID string `json:"candidateId"`
}

type updateProfileRequest struct {
	UserID      string `json:"userId"`
	LinkedinURL string `json:"linkedinUrl"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// decodeJSON reads one JSON object from the body into dst. Every failure is
// a validation error so the caller can pass it straight to writeError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("body", "Request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "Request body is required")
		default:
			return apperror.ValidationFailed("body", "Request body must be valid JSON")
		}
	}
	return nil
}

// actingUser resolves which identity a request acts on. The body may name
// a userId (the original frontend always sends one) but it must match the
// session; an empty one means "me".
func actingUser(r *http.Request, bodyUserID string) (string, error) {
	sessionUserID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("You must be logged in.")
	}
	if bodyUserID != "" && bodyUserID != sessionUserID {
		return "", apperror.Forbidden("You can only act on your own account.")
	}
	return sessionUserID, nil
}
