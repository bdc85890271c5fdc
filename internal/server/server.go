// Package server wires the ballot backend together and runs the HTTP server.
//
// COMPOSITION ROOT:
// main.go loads config, opens the store and picks a notifier. New builds
// everything else from those:
//
//	store → services (ledger, auth, sessions, reset, election) → handlers → routes
//
// No other package constructs services or handlers, so swapping the store
// (sqlite ↔ postgres) or the notifier (log ↔ smtp ↔ kafka) is a config
// change only.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/ballot/internal/auth"
	"github.com/sakif/ballot/internal/config"
	"github.com/sakif/ballot/internal/handler"
	"github.com/sakif/ballot/internal/middleware"
	"github.com/sakif/ballot/internal/notify"
	"github.com/sakif/ballot/internal/repository"
	"github.com/sakif/ballot/internal/service"
)

// requestTimeout bounds every request, storage calls included.
const requestTimeout = 15 * time.Second

// Server owns the router and the resources it closes on shutdown.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	store    repository.Store
	notifier notify.Notifier
}

// Options carries collaborators that tests replace.
type Options struct {
	// Providers overrides the OAuth providers built from config.
	Providers []auth.Provider
	// Passwords overrides the bcrypt cost.
	Passwords *auth.PasswordService
}

// New builds the dependency graph and routes. The server takes ownership of
// store and notifier and closes them when Start returns.
func New(cfg *config.Config, store repository.Store, notifier notify.Notifier, logger *slog.Logger, opts Options) (*Server, error) {
	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		store:    store,
		notifier: notifier,
	}
	if err := s.setupRoutes(opts); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func providersFromConfig(cfg *config.Config) []auth.Provider {
	var providers []auth.Provider
	if cfg.Google.Enabled() {
		providers = append(providers, auth.NewGoogleProvider(
			cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.CallbackURL))
	}
	if cfg.LinkedIn.Enabled() {
		providers = append(providers, auth.NewLinkedInProvider(
			cfg.LinkedIn.ClientID, cfg.LinkedIn.ClientSecret, cfg.LinkedIn.CallbackURL))
	}
	return providers
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	GET  /                               → liveness text
//	GET  /healthz                        → database ping
//	POST /auth/signup, /api/auth/signup  → create local account
//	POST /auth/login,  /api/auth/login   → start session
//	GET  /auth/current_user              → identity or empty body
//	GET  /auth/logout                    → end session, redirect
//	GET  /auth/{provider}[/callback]     → OAuth (google, linkedin)
//	GET  /api/candidates                 → ballot with tallies
//	POST /api/submit                     → cast vote            [session]
//	GET  /api/voters                     → public voter list
//	POST|PUT /api/user/update            → set LinkedIn URL     [session]
//	POST /api/auth/forgot-password       → email reset link
//	POST /api/auth/reset-password/{token}
//
// MIDDLEWARE ORDER:
// RequestID and RealIP first so the access log sees both; Recoverer inside
// the logger so a panic is logged as a 500; CORS before routing so
// preflight requests never reach a handler; LoadSession last so every
// handler can read the user id from the context.
func (s *Server) setupRoutes(opts Options) error {
	tokens, err := auth.NewTokenService(s.config.SessionSecret)
	if err != nil {
		return err
	}
	passwords := opts.Passwords
	if passwords == nil {
		passwords = auth.NewPasswordService()
	}
	providers := opts.Providers
	if providers == nil {
		providers = providersFromConfig(s.config)
	}

	sessions := service.NewSessionService(s.store, tokens, s.config.SessionTTL, s.logger)
	authService := service.NewAuthService(s.store, passwords, s.config.ProfileDomain, s.logger)
	resetService := service.NewResetService(s.store, sessions, passwords, s.notifier, s.config.FrontendURL, s.logger)
	ledger := service.NewVoteLedger(s.store, s.store, s.store, s.logger)
	election := service.NewElectionService(s.store, s.store, s.store, s.logger)

	cookies := auth.CookieOptions{Secure: s.config.CookieSecure, SameSite: s.config.CookieSameSite}

	authHandler := handler.NewAuthHandler(authService, sessions, providers, cookies, s.config.FrontendURL, s.logger)
	electionHandler := handler.NewElectionHandler(ledger, election, s.logger)
	userHandler := handler.NewUserHandler(authService, s.logger)
	resetHandler := handler.NewResetHandler(resetService, s.logger)
	indexHandler := handler.NewIndexHandler(s.store, s.logger)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.config.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.LoadSession(sessions))

	r.Get("/", indexHandler.HandleIndex)
	r.Get("/healthz", indexHandler.HandleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Get("/current_user", authHandler.HandleCurrentUser)
		r.Get("/logout", authHandler.HandleLogout)
		r.Get("/{provider}", authHandler.HandleProviderLogin)
		r.Get("/{provider}/callback", authHandler.HandleProviderCallback)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/candidates", electionHandler.HandleListCandidates)
		r.Get("/voters", electionHandler.HandleListVoters)

		r.Post("/auth/signup", authHandler.HandleSignup)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/forgot-password", resetHandler.HandleForgotPassword)
		r.Post("/auth/reset-password/{token}", resetHandler.HandleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Post("/submit", electionHandler.HandleSubmitVote)
			r.Post("/user/update", userHandler.HandleUpdateProfile)
			r.Put("/user/update", userHandler.HandleUpdateProfile)
		})
	})

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	s.logger.Info("routes configured", slog.Any("oauthProviders", names))
	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the notifier and the store.
func (s *Server) Start() error {
	defer s.store.Close()
	defer func() {
		if err := s.notifier.Close(); err != nil {
			s.logger.Warn("closing notifier", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("frontend", s.config.FrontendURL),
			slog.String("notifier", s.config.Notifier),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
