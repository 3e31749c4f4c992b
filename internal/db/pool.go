package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The save table stores envelopes as bytea rather than jsonb so the bytes,
// and with them the checksum, come back exactly as written.
const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS tycoon;
CREATE TABLE IF NOT EXISTS tycoon.saves (
	slot       text PRIMARY KEY,
	blob       bytea NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

// Options sizes the pool behind the save store. Zero sizes keep the
// defaults; one writer per slot rarely needs more than a handful of
// connections.
type Options struct {
	URL      string
	MaxConns int32
	MinConns int32
}

const (
	defaultMaxConns = 8
	defaultMinConns = 1
)

func poolConfig(opts Options) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = defaultMaxConns
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MinConns = min(int32(defaultMinConns), cfg.MaxConns)
	if opts.MinConns > 0 {
		cfg.MinConns = min(opts.MinConns, cfg.MaxConns)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute
	return cfg, nil
}

func Connect(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create save schema: %w", err)
	}
	return nil
}
