package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/console/service"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/engine"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ExecutionHandler struct {
	service *service.ExecutionService
	logger  *zap.Logger
}

func NewExecutionHandler(s *service.ExecutionService, logger *zap.Logger) *ExecutionHandler {
	return &ExecutionHandler{service: s, logger: logger.Named("execution-handler")}
}

// Execute запускает батч сессии
// POST /v1/sessions/{id}/execute?mode=approved|pending
func (h *ExecutionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = service.BatchModeApproved
	}

	batch, err := h.service.RunBatch(r.Context(), id, mode)
	if err != nil {
		var cycleErr *engine.CycleError
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
		case errors.Is(err, service.ErrEmptyBatch):
			http.Error(w, "no requests to execute in this mode", http.StatusConflict)
		case errors.As(err, &cycleErr):
			// Циклические зависимости: ни одного сетевого вызова не было
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("batch execution failed", zap.String("session_id", id), zap.Error(err))
			http.Error(w, "batch execution failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batch)
}

// Retry повторяет один упавший запрос
// POST /v1/requests/{id}/retry
func (h *ExecutionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRequestNotFound):
			http.Error(w, "request not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidTransition):
			http.Error(w, "only failed requests can be retried", http.StatusConflict)
		default:
			h.logger.Error("retry failed", zap.String("request_id", id), zap.Error(err))
			http.Error(w, "retry failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

// DryRun валидирует весь набор запросов без сетевых вызовов
// POST /v1/sessions/{id}/dry-run
func (h *ExecutionHandler) DryRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	results, err := h.service.DryRun(r.Context(), id)
	if err != nil {
		h.logger.Error("dry run failed", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "dry run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Order показывает порядок, в котором пойдет выполнение
// GET /v1/sessions/{id}/execution-order
func (h *ExecutionHandler) Order(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ordered, err := h.service.ExecutionOrder(r.Context(), id)
	if err != nil {
		var cycleErr *engine.CycleError
		if errors.As(err, &cycleErr) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("failed to compute execution order", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "failed to compute execution order", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ordered)
}

// TestConnection — ручная проверка доступности внешнего инстанса
// POST /v1/connection/test
func (h *ExecutionHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.service.TestConnection(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"status": "unreachable", "error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
