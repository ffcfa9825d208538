package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/harleysmodernlife/VERN/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
		FROM users WHERE username = $1`

	u := &domain.User{}
	var (
		email  *string
		scopes []byte
	)
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &email, &u.Username, &u.PasswordHash, &u.Role, &scopes, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if email != nil {
		u.Email = *email
	}
	if len(scopes) > 0 {
		_ = json.Unmarshal(scopes, &u.Scopes)
	}
	return u, nil
}
