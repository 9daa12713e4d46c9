package db

import (
	"context"
	"fmt"
	"time"

	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	startupAttempts = 5
	startupBackoff  = 2 * time.Second
)

// Connect opens the pool, retrying while the database is still starting.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := retry(ctx, log, "database connection", func() error {
		p, err := NewPool(ctx, cfg)
		pool = p
		return err
	})
	return pool, err
}

// Migrate runs RunMigrations with the same retry policy as Connect.
func Migrate(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) error {
	return retry(ctx, log, "database migrations", func() error {
		return RunMigrations(ctx, cfg)
	})
}

// retry waits attempt² × startupBackoff between attempts.
func retry(ctx context.Context, log *logger.Logger, name string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= startupAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Warn("startup step failed", "step", name, "attempt", attempt, "error", err)
		if attempt == startupAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * startupBackoff):
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}
