package audit

import "time"

// Действия, порождаемые движком выполнения и слоем сессий.
// Набор фиксирован: фронтенд фильтрует журнал по этим тегам.
const (
	ActionRequestAdded    = "REQUEST_ADDED"
	ActionRequestModified = "REQUEST_MODIFIED"
	ActionRequestRemoved  = "REQUEST_REMOVED"
	ActionRequestSuccess  = "REQUEST_SUCCESS"
	ActionRequestFailed   = "REQUEST_FAILED"
	ActionRetrySuccess    = "REQUEST_RETRY_SUCCESS"
	ActionRetryFailed     = "REQUEST_RETRY_FAILED"

	ActionSessionCreated   = "SESSION_CREATED"
	ActionStatusChanged    = "STATUS_CHANGED"
	ActionSessionCompleted = "SESSION_COMPLETED"
)

type AuditEntry struct {
	ID        string `json:"id"`         // UUID записи
	SessionID string `json:"session_id"` // Сессия-владелец
	RequestID string `json:"request_id"` // Пусто для событий уровня сессии
	Action    string `json:"action"`     // Один из тегов выше
	Details   string `json:"details"`    // Человекочитаемое описание

	// Снимки до/после для правок оператора (REQUEST_MODIFIED и т.п.)
	BeforeValue any `json:"before_value,omitempty"`
	AfterValue  any `json:"after_value,omitempty"`

	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"` // Время внешнего вызова, 0 для правок
}
