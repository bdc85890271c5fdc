package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ballot/internal/service"
)

const (
	msgResetRequested  = "If that email is registered, we sent a link."
	msgPasswordChanged = "Success! Your password has been changed."
)

type ResetHandler struct {
	reset  *service.ResetService
	logger *slog.Logger
}

func NewResetHandler(reset *service.ResetService, logger *slog.Logger) *ResetHandler {
	return &ResetHandler{reset: reset, logger: logger}
}

// HandleForgotPassword starts a reset. The answer is the same whether or
// not the email is registered.
//
// HTTP: POST /api/auth/forgot-password  {"email"}
func (h *ResetHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.reset.RequestReset(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, msgResetRequested)
}

// HandleResetPassword sets a new password with an emailed token.
//
// HTTP: POST /api/auth/reset-password/{token}  {"password"}
func (h *ResetHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.reset.ConsumeReset(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, msgPasswordChanged)
}
