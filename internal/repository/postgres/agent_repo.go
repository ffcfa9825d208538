package postgres

/*
Файл agent_repo.go — долговременное хранилище реестра присутствия.
Кэш в памяти (internal/registry) пишет сюда write-through: если запись
в базу не прошла, кэш не трогается и heartbeat завершается ошибкой.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harleysmodernlife/VERN/internal/domain"
	"github.com/jackc/pgx/v5"
)

// UpsertAgent создает или обновляет запись по heartbeat.
// COALESCE сохраняет прежние capabilities/meta, если новые не переданы;
// ручной status_override сбрасывается каждым heartbeat.
func (r *Repo) UpsertAgent(ctx context.Context, rec domain.AgentRecord) error {
	caps, err := marshalOpaque(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("postgres: bad capabilities payload: %w", err)
	}
	meta, err := marshalOpaque(rec.Meta)
	if err != nil {
		return fmt.Errorf("postgres: bad meta payload: %w", err)
	}

	query := `
		INSERT INTO agents (name, cluster, capabilities, meta, last_seen, status_override)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (name) DO UPDATE SET
			cluster         = EXCLUDED.cluster,
			capabilities    = COALESCE(EXCLUDED.capabilities, agents.capabilities),
			meta            = COALESCE(EXCLUDED.meta, agents.meta),
			last_seen       = EXCLUDED.last_seen,
			status_override = NULL`

	if _, err := r.pool.Exec(ctx, query, rec.Name, rec.Cluster, caps, meta, rec.LastSeen); err != nil {
		return fmt.Errorf("postgres: failed to upsert agent: %w", err)
	}
	return nil
}

// SetStatusOverride записывает ручной статус (например, "draining").
func (r *Repo) SetStatusOverride(ctx context.Context, name, status string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE agents SET status_override = $1 WHERE name = $2`, status, name)
	if err != nil {
		return fmt.Errorf("postgres: failed to set status override: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.NewNotFoundError("agent", name)
	}
	return nil
}

// GetAgent возвращает запись или nil, если агент неизвестен.
func (r *Repo) GetAgent(ctx context.Context, name string) (*domain.AgentRecord, error) {
	query := `
		SELECT name, cluster, capabilities, meta, last_seen, status_override
		FROM agents WHERE name = $1`

	rec, err := scanAgent(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to fetch agent: %w", err)
	}
	return rec, nil
}

// ListAgents возвращает весь реестр для прогрева L1-кэша при старте.
func (r *Repo) ListAgents(ctx context.Context) ([]domain.AgentRecord, error) {
	query := `
		SELECT name, cluster, capabilities, meta, last_seen, status_override
		FROM agents ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list agents: %w", err)
	}
	defer rows.Close()

	results := make([]domain.AgentRecord, 0)
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent: %w", err)
		}
		results = append(results, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// DeleteAgent удаляет запись навсегда.
func (r *Repo) DeleteAgent(ctx context.Context, name string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete agent: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.NewNotFoundError("agent", name)
	}
	return nil
}

// ClearAgents очищает реестр целиком.
func (r *Repo) ClearAgents(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM agents`); err != nil {
		return fmt.Errorf("postgres: failed to clear agents: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.AgentRecord, error) {
	var (
		rec      domain.AgentRecord
		caps     []byte
		meta     []byte
		override *string
	)
	if err := row.Scan(&rec.Name, &rec.Cluster, &caps, &meta, &rec.LastSeen, &override); err != nil {
		return nil, err
	}
	if len(caps) > 0 {
		_ = json.Unmarshal(caps, &rec.Capabilities)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &rec.Meta)
	}
	if override != nil {
		rec.StatusOverride = *override
	}
	return &rec, nil
}

// marshalOpaque сериализует опаковый payload; nil остается SQL NULL ради COALESCE.
func marshalOpaque(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
