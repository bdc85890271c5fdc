// Package service contains the business rules of the ballot backend.
//
// LAYERS:
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service (rules) → validates input, orchestrates, translates failures
//	Repository      → SQL against sqlite or postgres
//
// Services take repository interfaces, never a concrete backend, so tests
// run against the in-memory fake in fakes_test.go.
//
// ERRORS:
// Every error a service returns is an *apperror.AppError. Typed errors from
// the repository (NotFound, DuplicateVote, EmailTaken, ...) pass through
// unchanged; anything else is a storage failure and becomes
// apperror.Unavailable with the original error kept as the cause for logs.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/sakif/ballot/internal/apperror"
)

const msgUnavailable = "Something went wrong. Please try again."

// storageError passes typed application errors through and wraps everything
// else as a retryable storage failure.
func storageError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Unavailable(msgUnavailable, fmt.Errorf("%s: %w", op, err))
}

// clock is swapped in tests to move time past token and session expiries.
type clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
