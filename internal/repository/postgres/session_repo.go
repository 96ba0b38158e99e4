package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"github.com/jackc/pgx/v5"
)

// Общий список колонок, чтобы выборка списка и карточки не расходилась
const sessionColumns = `id, document_name, created_by, status, paused, created_at, updated_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	s := &domain.Session{}
	err := row.Scan(
		&s.ID, &s.DocumentName, &s.CreatedBy, &s.Status, &s.Paused, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repo) CreateSession(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (id, document_name, created_by, status)
		VALUES ($1, $2, $3, $4)`

	_, err := r.pool.Exec(ctx, query, s.ID, s.DocumentName, s.CreatedBy, s.Status)
	if err != nil {
		return fmt.Errorf("postgres: failed to create session: %w", err)
	}
	return nil
}

func (r *Repo) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres: failed to fetch session: %w", err)
	}
	return s, nil
}

func (r *Repo) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC LIMIT 100`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query sessions: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan session: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func (r *Repo) UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error {
	query := `UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update session status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// SetSessionPaused переключает флаг паузы. Redis-сигнал шлет сервисный слой.
func (r *Repo) SetSessionPaused(ctx context.Context, id string, paused bool) error {
	query := `UPDATE sessions SET paused = $1, updated_at = NOW() WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, paused, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update pause flag: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// GetPausedSessions отдает ID сессий на паузе для прогрева L1-кэша движка.
func (r *Repo) GetPausedSessions(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM sessions WHERE paused = TRUE`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch paused sessions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan session id error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}

// DeleteSession удаляет сессию вместе с запросами и журналом аудита.
// Единственный легальный способ уничтожения записей аудита.
func (r *Repo) DeleteSession(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM audit_logs WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: failed to delete audit entries: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM requests WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: failed to delete requests: %w", err)
	}

	ct, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}

	return tx.Commit(ctx)
}
