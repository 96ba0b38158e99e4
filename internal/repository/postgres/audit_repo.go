package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/audit"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
)

// WriteBatch — пакетная вставка записей журнала (реализация
// audit.StorageInterface). Запрос строится динамически под размер пачки.
func (r *Repo) WriteBatch(ctx context.Context, entries []audit.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_logs
	numFields := 9
	placeholderStr := ""
	vals := make([]interface{}, 0, len(entries)*numFields)

	for i, e := range entries {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		before, _ := json.Marshal(e.BeforeValue)
		after, _ := json.Marshal(e.AfterValue)

		vals = append(vals,
			e.ID, e.SessionID, e.RequestID, e.Action, e.Details,
			before, after, e.DurationMs, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_logs (id, session_id, request_id, action, details, before_value, after_value, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.pool.Exec(ctx, query, vals...)
	return err
}

// FetchEntries возвращает журнал сессии (с опциональным фильтром по действию)
// в порядке добавления — это причинная история батча.
func (r *Repo) FetchEntries(ctx context.Context, sessionID, action string) ([]audit.AuditEntry, error) {
	query := `
		SELECT id, session_id, request_id, action, details, before_value, after_value, duration_ms, timestamp
		FROM audit_logs WHERE session_id = $1`

	args := []interface{}{sessionID}
	if action != "" {
		query += " AND action = $2"
		args = append(args, action)
	}
	query += " ORDER BY timestamp, id LIMIT 500"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit entries: %w", err)
	}
	defer rows.Close()

	results := make([]audit.AuditEntry, 0)
	for rows.Next() {
		var e audit.AuditEntry
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.RequestID, &e.Action, &e.Details,
			&before, &after, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit entry: %w", err)
		}
		e.BeforeValue = unmarshalMaybe(before)
		e.AfterValue = unmarshalMaybe(after)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func unmarshalMaybe(raw []byte) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// GetUnifiedDashboard собирает агрегаты для главного экрана консоли.
func (r *Repo) GetUnifiedDashboard(ctx context.Context) (*domain.UnifiedDashboard, error) {
	d := &domain.UnifiedDashboard{}

	// 1. Сессии по статусам
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'draft'),
			COUNT(*) FILTER (WHERE status = 'reviewing'),
			COUNT(*) FILTER (WHERE status = 'executing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM sessions`).Scan(
		&d.Sessions.Draft, &d.Sessions.Reviewing, &d.Sessions.Executing,
		&d.Sessions.Completed, &d.Sessions.Failed,
	)
	if err != nil {
		return nil, err
	}

	// 2. Запросы по статусам
	err = r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM requests`).Scan(
		&d.Requests.Pending, &d.Requests.Approved, &d.Requests.Succeeded, &d.Requests.Failed,
	)
	if err != nil {
		return nil, err
	}

	// 3. Метрики из журнала за последний час.
	// PERCENTILE_CONT дает честный P95 по времени внешних вызовов.
	err = r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE action IN ('REQUEST_RETRY_SUCCESS', 'REQUEST_RETRY_FAILED')),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms)
				FILTER (WHERE action IN ('REQUEST_SUCCESS', 'REQUEST_FAILED', 'REQUEST_RETRY_SUCCESS', 'REQUEST_RETRY_FAILED')), 0)
		FROM audit_logs
		WHERE timestamp > NOW() - INTERVAL '60 minutes'`).Scan(
		&d.Requests.Retries, &d.Quality.P95LatencyMs,
	)
	if err != nil {
		return nil, err
	}

	total := d.Requests.Succeeded + d.Requests.Failed
	if total > 0 {
		d.Quality.SuccessRatio = float64(d.Requests.Succeeded) / float64(total)
	}

	return d, nil
}
