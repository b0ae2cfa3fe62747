package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"bist-tracker/internal/config"
)

// OpenMirror connects to the database named by cfg and prepares the schema.
// It returns nil when no DSN is configured.
func OpenMirror(ctx context.Context, cfg config.DatabaseConfig) (*Mirror, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mirror := NewMirror(pool)
	if err := mirror.EnsureSchema(ctx); err != nil {
		mirror.Close()
		return nil, err
	}
	return mirror, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}
