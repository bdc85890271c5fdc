// Command server runs the ballot HTTP API.
//
// Configuration comes from the environment (and .env in development); see
// internal/config for every key. main only builds the logger, the store and
// the notifier; internal/server wires the rest.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/ballot/internal/config"
	"github.com/sakif/ballot/internal/database"
	"github.com/sakif/ballot/internal/notify"
	"github.com/sakif/ballot/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := database.Open(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to open database",
			slog.String("database", database.Describe(cfg)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("database ready", slog.String("database", database.Describe(cfg)))

	if !cfg.Google.Enabled() && !cfg.LinkedIn.Enabled() {
		logger.Warn("no OAuth provider configured; only email/password login is available")
	}

	srv, err := server.New(cfg, store, notify.New(cfg, logger), logger, server.Options{})
	if err != nil {
		store.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
