package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/ballot/internal/apperror"
	"github.com/sakif/ballot/internal/auth"
	"github.com/sakif/ballot/internal/model"
	"github.com/sakif/ballot/internal/service"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute

	msgAccountCreated = "Account created! You can now log in."
	msgLoginSuccess   = "Login successful"
)

// AuthHandler serves local sign-up/login, the OAuth redirect dance, the
// current-user probe and logout.
//
// ROUTES:
//   - POST /auth/signup               → HandleSignup
//   - POST /auth/login                → HandleLogin
//   - GET  /auth/current_user         → HandleCurrentUser
//   - GET  /auth/logout               → HandleLogout
//   - GET  /auth/{provider}           → HandleProviderLogin
//   - GET  /auth/{provider}/callback  → HandleProviderCallback
type AuthHandler struct {
	auth        *service.AuthService
	sessions    *service.SessionService
	providers   map[string]auth.Provider
	cookies     auth.CookieOptions
	frontendURL string
	logger      *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	sessions *service.SessionService,
	providers []auth.Provider,
	cookies auth.CookieOptions,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	byName := make(map[string]auth.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthHandler{
		auth:        authService,
		sessions:    sessions,
		providers:   byName,
		cookies:     cookies,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

type loginResponse struct {
	Message string          `json:"message"`
	User    *model.Identity `json:"user"`
}

// HandleSignup creates a local account. It does not log the user in; the
// frontend sends them to the login form next.
//
// HTTP: POST /auth/signup  {"name","email","password"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, msgAccountCreated)
}

// HandleLogin checks credentials, starts a session and sets the cookie.
//
// HTTP: POST /auth/login  {"email","password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	identity, err := h.auth.AuthenticateLocal(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !h.startSession(w, r, identity.ID) {
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Message: msgLoginSuccess, User: identity})
}

// startSession writes the session cookie, or an error response. It reports
// whether the caller should continue.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID string) bool {
	token, expiresAt, err := h.sessions.CreateSession(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return false
	}
	h.cookies.SetSessionCookie(w, token, expiresAt)
	return true
}

// HandleCurrentUser returns the logged-in identity, or an empty 200 body
// when there is no session. The frontend treats an empty body as "logged
// out", so this never answers 401.
//
// HTTP: GET /auth/current_user
func (h *AuthHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	identity, err := h.auth.CurrentUser(r.Context(), userID)
	if errors.Is(err, apperror.ErrNotFound) {
		// Session outlived its identity.
		h.cookies.ClearSessionCookie(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// HandleLogout ends the session and sends the browser back to the frontend.
//
// HTTP: GET /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.DestroySession(r.Context(), auth.SessionToken(r)); err != nil {
		h.logger.WarnContext(r.Context(), "failed to delete session on logout",
			slog.String("error", err.Error()),
		)
	}
	h.cookies.ClearSessionCookie(w)
	http.Redirect(w, r, h.frontendURL, http.StatusFound)
}

func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (auth.Provider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		writeError(w, r, h.logger, apperror.NotFound("login provider", name))
		return nil, false
	}
	return p, true
}

// HandleProviderLogin redirects the browser to the provider's consent page.
//
// HTTP: GET /auth/{provider}
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the
// authorization URL. The callback only proceeds if the two match, which
// proves the login was started from this browser.
//
// The state cookie is SameSite=Lax: the provider's redirect back to us is a
// top-level GET navigation, which Lax cookies survive.
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleProviderCallback completes an OAuth login.
//
// HTTP: GET /auth/{provider}/callback?code=...&state=...
//
// FLOW:
//  1. Check the state parameter against the state cookie
//  2. Exchange the code for the provider's profile
//  3. Find, link or create the identity
//  4. Start a session and redirect to the dashboard
//
// Any failure redirects to the frontend's landing page; the browser is
// mid-redirect here, so a JSON error body would never be seen.
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}
	failure := h.frontendURL + "/"
	q := r.URL.Query()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.WarnContext(r.Context(), "oauth callback: state mismatch",
			slog.String("provider", p.Name()),
		)
		http.Redirect(w, r, failure, http.StatusFound)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.InfoContext(r.Context(), "oauth callback: authorization denied",
			slog.String("provider", p.Name()),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, failure, http.StatusFound)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Redirect(w, r, failure, http.StatusFound)
		return
	}

	profile, err := p.Exchange(r.Context(), code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oauth callback: exchange failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, failure, http.StatusFound)
		return
	}

	identity, err := h.auth.AuthenticateExternal(r.Context(), profile)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oauth callback: identity lookup failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, failure, http.StatusFound)
		return
	}

	token, expiresAt, err := h.sessions.CreateSession(r.Context(), identity.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oauth callback: session failed",
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, failure, http.StatusFound)
		return
	}
	h.cookies.SetSessionCookie(w, token, expiresAt)

	h.logger.InfoContext(r.Context(), "oauth login",
		slog.String("provider", p.Name()),
		slog.String("userID", identity.ID),
	)
	http.Redirect(w, r, h.frontendURL+"/dashboard", http.StatusFound)
}
