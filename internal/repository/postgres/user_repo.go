package postgres

import (
	"context"
	"errors"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"github.com/jackc/pgx/v5"
)

func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, created_at, updated_at
		FROM users WHERE username = $1`

	u := &domain.User{}
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}
