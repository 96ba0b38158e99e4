package domain

import "time"

// Статусы сессии (владелец батча запросов и журнала аудита)
type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"     // Сущности извлечены, запросы сформированы
	SessionReviewing SessionStatus = "reviewing" // Оператор правит/одобряет запросы
	SessionExecuting SessionStatus = "executing" // Идет прогон батча
	SessionCompleted SessionStatus = "completed" // Все запросы success
	SessionFailed    SessionStatus = "failed"    // Прогон завершился с ошибками
)

// Session владеет набором запросов одного документа.
// Батч не персистентная сущность: он каждый раз материализуется
// из актуальных статусов запросов сессии.
type Session struct {
	ID           string        `json:"id"`
	DocumentName string        `json:"document_name"`
	CreatedBy    string        `json:"created_by"`
	Status       SessionStatus `json:"status"`
	Paused       bool          `json:"paused"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ExtractedDocument — результат внешнего пайплайна извлечения (OCR/AI).
// Мы принимаем его как есть и превращаем в набор запросов.
type ExtractedDocument struct {
	DocumentName  string           `json:"document_name"`
	Vendor        map[string]any   `json:"vendor,omitempty"`
	Supplier      map[string]any   `json:"supplier,omitempty"`
	Contract      map[string]any   `json:"contract,omitempty"`
	ExpenseLines  []map[string]any `json:"expense_lines,omitempty"`
	PurchaseOrder map[string]any   `json:"purchase_order,omitempty"`
	PurchaseLines []map[string]any `json:"purchase_order_lines,omitempty"`
}

// DryRunResult — результат проверки одного запроса без сетевых вызовов.
type DryRunResult struct {
	RequestID string   `json:"request_id"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors"`
}
