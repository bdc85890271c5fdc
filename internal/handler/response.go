package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeMessage / writeError so the
// API has one success shape and one error shape:
//
//	{"message": "Vote confirmed successfully!"}
//	{"error": "You have already voted.", "code": "duplicate_vote"}
//
// "error" is always a short human-readable sentence the frontend can show
// as-is. "code" is the machine-readable kind from apperror.Kind.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/ballot/internal/apperror"
)

const msgInternal = "Something went wrong. Please try again."

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sets headers and status before the body; header changes after
// the first Write are ignored by net/http.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrDuplicateVote),
		errors.Is(err, apperror.ErrEmailTaken),
		errors.Is(err, apperror.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrInvalidCredentials),
		errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err into the standard error body. Only AppError
// messages are sent to the client; anything else (a SQL error, a provider
// error) is logged and replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)

	message := msgInternal
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		message = appErr.Message
	}

	if status == http.StatusInternalServerError {
		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		}
		if appErr != nil && appErr.Cause != nil {
			attrs = append(attrs, slog.String("cause", appErr.Cause.Error()))
		}
		logger.ErrorContext(r.Context(), "request failed", attrs...)
	}

	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  apperror.Kind(err),
	})
}
