package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Статусы State Machine запроса
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"   // Создан, ждет решения оператора
	StatusApproved  RequestStatus = "approved"  // Одобрен к выполнению
	StatusExecuting RequestStatus = "executing" // В полете (строго один на батч)
	StatusSuccess   RequestStatus = "success"   // Завершен, sys_id получен
	StatusFailed    RequestStatus = "failed"    // Завершен с ошибкой, доступен Retry
)

// Типы сущностей закупочного документа.
// Ключ используется и для объявления зависимостей (DependsOn),
// и для поиска результата при разрешении плейсхолдеров.
const (
	EntityVendor            = "vendor"
	EntitySupplier          = "supplier"
	EntityContract          = "contract"
	EntityExpenseLine       = "expense_line"
	EntityPurchaseOrder     = "purchase_order"
	EntityPurchaseOrderLine = "purchase_order_line"
)

var (
	ErrInvalidTransition = errors.New("invalid request status transition")
	ErrRemoveExecuting   = errors.New("request is executing and cannot be removed")
	ErrRequestNotFound   = errors.New("request not found")
	ErrSessionNotFound   = errors.New("session not found")
)

// ExternalResult — типизированный результат вызова внешней системы.
// Извлечение sys_id из data.result.sys_id происходит ровно в одном месте —
// в адаптере коннектора. Ядро движка не заглядывает в нетипизированный payload.
type ExternalResult struct {
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	SysID      string            `json:"sys_id,omitempty"` // Пустая строка = идентификатор не вернулся
	Raw        json.RawMessage   `json:"data,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Err        string            `json:"error,omitempty"`
}

// Succeeded — вызов успешен тогда и только тогда, когда код в [200, 300)
// и транспорт не вернул исключение.
func (r *ExternalResult) Succeeded() bool {
	return r != nil && r.Err == "" && r.Status >= 200 && r.Status < 300
}

// Request описывает одну отложенную мутацию записи в ServiceNow.
type Request struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	EntityType string `json:"entity_type"` // vendor, supplier, contract...

	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`

	// Body — канонический шаблон. Значения могут быть литералами
	// или плейсхолдерами вида {{vendor.sys_id}}.
	Body map[string]any `json:"body"`

	// ModifiedBody — тело после подстановки значений. Храним отдельно,
	// чтобы Retry всегда перерешал исходный шаблон, а не уже подставленное.
	ModifiedBody map[string]any `json:"modified_body,omitempty"`

	DependsOn []string      `json:"depends_on,omitempty"`
	Status    RequestStatus `json:"status"`

	Response *ExternalResult `json:"response,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// allowedTransitions — правила конечного автомата.
// pending -> executing разрешен: режим «выполнить все pending»
// запускает запросы без явного одобрения.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:   {StatusApproved, StatusExecuting},
	StatusApproved:  {StatusExecuting, StatusPending},
	StatusExecuting: {StatusSuccess, StatusFailed},
	StatusFailed:    {StatusExecuting},
	StatusSuccess:   {},
}

// CanTransitionTo проверяет правила конечного автомата
func (r *Request) CanTransitionTo(next RequestStatus) error {
	for _, s := range allowedTransitions[r.Status] {
		if s == next {
			return nil
		}
	}
	return ErrInvalidTransition
}

// Removable — удалять можно только запросы вне полета.
func (r *Request) Removable() bool {
	return r.Status != StatusExecuting && r.Status != StatusSuccess
}

// Template возвращает канонический шаблон тела для разрешения плейсхолдеров.
func (r *Request) Template() map[string]any {
	return r.Body
}

// CloneBody — глубокая копия на один уровень. Резолвер пишет только в копию,
// шаблон остается нетронутым для повторного разрешения при Retry.
func CloneBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	return out
}
