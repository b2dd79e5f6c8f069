package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS deployments (
	id            TEXT PRIMARY KEY,
	phone_number  TEXT NOT NULL,
	email         TEXT NOT NULL,
	username      TEXT NOT NULL,
	panel_user_id INTEGER,
	node_id       INTEGER,
	allocation_id INTEGER,
	server_id     INTEGER,
	server_name   TEXT,
	stage         TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS deployments_phone_created_idx
	ON deployments (phone_number, created_at DESC);

CREATE TABLE IF NOT EXISTS deployment_logs (
	id            TEXT PRIMARY KEY,
	deployment_id TEXT NOT NULL REFERENCES deployments (id) ON DELETE CASCADE,
	stage         TEXT NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS deployment_logs_deployment_idx
	ON deployment_logs (deployment_id, created_at DESC);
`

// NewPool creates a connection pool from DSN
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("connected to PostgreSQL")

	return pool, nil
}

// Migrate creates the audit tables when missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
