package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harleysmodernlife/VERN/internal/audit"
)

// WriteBatch пишет пачку событий аудита одним INSERT.
// Вызывается только воркером audit.Trail, не горячим путем.
func (r *Repo) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	const numFields = 7
	var placeholders strings.Builder
	vals := make([]any, 0, len(entries)*numFields)

	for i, e := range entries {
		p := i * numFields
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7)

		payload, _ := json.Marshal(e.Payload)
		vals = append(vals, uuid.New().String(), e.Actor, e.UserID, e.ActionType, payload, e.Status, e.Timestamp)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_log (id, actor, user_id, action_type, payload, status, timestamp) VALUES %s",
		strings.TrimSuffix(placeholders.String(), ","),
	)

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: audit batch insert failed: %w", err)
	}
	return nil
}

// FetchEntries возвращает свежие события с фильтрацией для админки.
func (r *Repo) FetchEntries(ctx context.Context, actor, actionType string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT actor, user_id, action_type, payload, status, timestamp FROM audit_log`
	args := make([]any, 0, 3)
	conds := make([]string, 0, 2)

	if actor != "" {
		args = append(args, actor)
		conds = append(conds, fmt.Sprintf("actor = $%d", len(args)))
	}
	if actionType != "" {
		args = append(args, actionType)
		conds = append(conds, fmt.Sprintf("action_type = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit log: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e       audit.Entry
			payload []byte
			userID  *string
		)
		if err := rows.Scan(&e.Actor, &userID, &e.ActionType, &payload, &e.Status, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit entry: %w", err)
		}
		if userID != nil {
			e.UserID = *userID
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
