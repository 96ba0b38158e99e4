package postgres

/*
Файл request_repo.go хранит запросы-мутации. JSON-колонки (headers, body,
modified_body, depends_on, response) маппятся напрямую в Go-структуры —
pgx кодирует map/slice в jsonb без ручного маршалинга.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, session_id, entity_type, method, url, headers,
	body, modified_body, depends_on, status, response, created_at, executed_at`

func scanRequest(row pgx.Row) (*domain.Request, error) {
	req := &domain.Request{}
	err := row.Scan(
		&req.ID, &req.SessionID, &req.EntityType, &req.Method, &req.URL, &req.Headers,
		&req.Body, &req.ModifiedBody, &req.DependsOn, &req.Status, &req.Response,
		&req.CreatedAt, &req.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// InsertRequests сохраняет весь набор запросов сессии одной транзакцией.
func (r *Repo) InsertRequests(ctx context.Context, requests []*domain.Request) error {
	if len(requests) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO requests (id, session_id, entity_type, method, url, headers, body, depends_on, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, req := range requests {
		_, err := tx.Exec(ctx, query,
			req.ID, req.SessionID, req.EntityType, req.Method, req.URL,
			req.Headers, req.Body, req.DependsOn, req.Status,
		)
		if err != nil {
			return fmt.Errorf("postgres: failed to insert request %s: %w", req.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *Repo) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("postgres: failed to fetch request: %w", err)
	}
	return req, nil
}

// ListRequests отдает все запросы сессии в порядке создания.
// Батч на выполнение материализуется из этого среза по статусу.
func (r *Repo) ListRequests(ctx context.Context, sessionID string) ([]*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE session_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query requests: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan request: %w", err)
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// UpdateRequestBody заменяет канонический шаблон тела (правка оператора).
// Разрешено только до выполнения; modified_body сбрасывается.
func (r *Repo) UpdateRequestBody(ctx context.Context, id string, body map[string]any) error {
	query := `
		UPDATE requests
		SET body = $1, modified_body = NULL
		WHERE id = $2 AND status IN ('pending', 'approved', 'failed')`

	ct, err := r.pool.Exec(ctx, query, body, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update request body: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

// UpdateRequestStatus — одиночный переход статуса (approve/reject).
func (r *Repo) UpdateRequestStatus(ctx context.Context, id string, status domain.RequestStatus) error {
	query := `UPDATE requests SET status = $1 WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update request status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

// ApproveAllPending — массовое одобрение. Возвращает число затронутых строк.
func (r *Repo) ApproveAllPending(ctx context.Context, sessionID string) (int64, error) {
	query := `UPDATE requests SET status = 'approved' WHERE session_id = $1 AND status = 'pending'`

	ct, err := r.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to approve pending requests: %w", err)
	}
	return ct.RowsAffected(), nil
}

// SaveExecution фиксирует исход вызова: статус, подставленное тело,
// ответ внешней системы и таймстемп выполнения.
func (r *Repo) SaveExecution(ctx context.Context, req *domain.Request) error {
	query := `
		UPDATE requests
		SET status = $1, modified_body = $2, response = $3, executed_at = $4
		WHERE id = $5`

	_, err := r.pool.Exec(ctx, query, req.Status, req.ModifiedBody, req.Response, req.ExecutedAt, req.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to save execution result: %w", err)
	}
	return nil
}

// DeleteRequest удаляет запрос. Условие на статус исключает удаление
// запроса в полете на уровне БД, а не только сервиса.
func (r *Repo) DeleteRequest(ctx context.Context, id string) error {
	query := `DELETE FROM requests WHERE id = $1 AND status IN ('pending', 'approved', 'failed')`

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete request: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// Либо нет такого запроса, либо он executing/success
		return domain.ErrRemoveExecuting
	}
	return nil
}
