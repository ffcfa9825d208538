package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo — общий пул соединений для всех таблиц контрольной плоскости.
type Repo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, url string, maxConns, minConns int32) (*Repo, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Ping проверяет доступность базы при старте
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repo) Close() {
	r.pool.Close()
}

// Bootstrap создает схему при старте, если её еще нет.
// Одна строка на агента (name — первичный ключ) плюс вторичный индекс по кластеру.
func (r *Repo) Bootstrap(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			name            TEXT PRIMARY KEY,
			cluster         TEXT NOT NULL DEFAULT 'default',
			capabilities    JSONB,
			meta            JSONB,
			last_seen       TIMESTAMPTZ NOT NULL,
			status_override TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_cluster ON agents(cluster)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id          UUID PRIMARY KEY,
			actor       TEXT NOT NULL,
			user_id     TEXT,
			action_type TEXT NOT NULL,
			payload     JSONB,
			status      TEXT NOT NULL,
			timestamp   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor)`,
		`CREATE TABLE IF NOT EXISTS users (
			id            UUID PRIMARY KEY,
			email         TEXT,
			username      TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'operator',
			scopes        JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: bootstrap failed: %w", err)
		}
	}
	return nil
}
