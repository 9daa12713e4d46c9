// Package db opens the Postgres pool and applies the embedded migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"bbys_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pool sized by DATABASE_MAX_CONNS and checks that the
// server answers before returning it.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if n := cfg.GetDatabaseMaxConns(); n > 0 {
		poolCfg.MaxConns = int32(n)
	}
	poolCfg.MinConns = min(2, poolCfg.MaxConns)
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Pinger is the readiness probe for the pool.
type Pinger struct{ pool *pgxpool.Pool }

func NewPinger(pool *pgxpool.Pool) Pinger { return Pinger{pool: pool} }

func (p Pinger) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
