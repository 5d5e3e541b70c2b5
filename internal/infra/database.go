package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daoledger/daoledger/internal/config"
	"github.com/daoledger/daoledger/internal/journal"
)

// postgresConfig parses DATABASE_URL and applies the pool bounds from cfg.
func postgresConfig(cfg config.Config) (*pgxpool.Config, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		pc.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns > 0 {
		pc.MinConns = cfg.DBMinConns
	}
	return pc, nil
}

// NewPostgresPool configures and returns a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pc, err := postgresConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// OpenJournal connects to PostgreSQL and prepares the operation journal.
// The caller owns the returned pool.
func OpenJournal(ctx context.Context, cfg config.Config) (*pgxpool.Pool, *journal.Postgres, error) {
	pool, err := NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	j := journal.NewPostgres(pool)
	if err := j.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, j, nil
}
