package postgres

import (
	"context"
	"fmt"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo — общий доступ к PostgreSQL через пул pgx.
// Методы по доменам разложены по файлам: session_repo, request_repo,
// audit_repo, user_repo.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(ctx context.Context, cfg infra.DatabaseConfig) (*Repo, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
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
