// Package database opens the storage backend named in the config.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sakif/ballot/internal/config"
	"github.com/sakif/ballot/internal/repository"
	"github.com/sakif/ballot/internal/repository/postgres"
	"github.com/sakif/ballot/internal/repository/sqlite"
)

// Open connects to sqlite or postgres and runs migrations. For sqlite the
// parent directory of the database file is created if missing.
func Open(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DatabaseType {
	case config.DatabaseSQLite:
		if cfg.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("database: creating %s: %w", dir, err)
			}
		}
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DatabasePostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("database: unknown DATABASE_TYPE %q", cfg.DatabaseType)
	}
}

// Describe names the backend for startup logs without leaking credentials.
func Describe(cfg *config.Config) string {
	if cfg.DatabaseType == config.DatabaseSQLite {
		return "sqlite:" + cfg.DBPath
	}
	return cfg.DatabaseType
}
