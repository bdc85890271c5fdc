package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/ballot/internal/service"
)

type UserHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewUserHandler(authService *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{auth: authService, logger: logger}
}

// HandleUpdateProfile sets the session user's public LinkedIn URL and
// returns the updated identity.
//
// HTTP: POST|PUT /api/user/update  {"userId","linkedinUrl"}
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	userID, err := actingUser(r, req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	identity, err := h.auth.UpdateExternalProfile(r.Context(), userID, req.LinkedinURL)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}
