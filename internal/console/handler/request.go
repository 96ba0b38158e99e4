package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/console/service"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra/auth"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RequestHandler struct {
	service *service.SessionService
	logger  *zap.Logger
}

func NewRequestHandler(s *service.SessionService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{service: s, logger: logger.Named("request-handler")}
}

// EditBody обновляет JSON-тело запроса до выполнения
// PUT /v1/requests/{id}/body
func (h *RequestHandler) EditBody(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.service.EditRequestBody(r.Context(), id, body, auth.UserID(r.Context())); err != nil {
		h.writeError(w, id, "failed to edit request body", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Approve переводит запрос pending -> approved
// POST /v1/requests/{id}/approve
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.ApproveRequest(r.Context(), id, auth.UserID(r.Context())); err != nil {
		h.writeError(w, id, "failed to approve request", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reject возвращает одобренный запрос обратно в pending
// POST /v1/requests/{id}/reject
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.RejectRequest(r.Context(), id, auth.UserID(r.Context())); err != nil {
		h.writeError(w, id, "failed to reject request", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Remove исключает запрос из сессии (выполненные и летящие не трогаем)
// DELETE /v1/requests/{id}
func (h *RequestHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.RemoveRequest(r.Context(), id, auth.UserID(r.Context())); err != nil {
		h.writeError(w, id, "failed to remove request", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeError разделяет типы ошибок домена по HTTP-кодам
func (h *RequestHandler) writeError(w http.ResponseWriter, requestID, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrRequestNotFound):
		http.Error(w, "request not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrRemoveExecuting):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(msg, zap.String("request_id", requestID), zap.Error(err))
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
