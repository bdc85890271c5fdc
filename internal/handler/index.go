// Package handler contains the HTTP handlers of the ballot backend.
//
// HANDLER RESPONSIBILITIES:
//  1. Decode the request into a typed request struct (request.go)
//  2. Call one service method
//  3. Write the response through the helpers in response.go
//
// Handlers hold no business rules. They know about cookies, redirects and
// status codes; services know about identities and votes.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is the part of the store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

type IndexHandler struct {
	db     Pinger
	logger *slog.Logger
}

func NewIndexHandler(db Pinger, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{db: db, logger: logger}
}

// HandleIndex is the liveness text the frontend's deploy checks look for.
//
// HTTP: GET /
func (h *IndexHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Voting App Backend is Running!"))
}

// HandleHealth reports whether the database answers.
//
// HTTP: GET /healthz
func (h *IndexHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
