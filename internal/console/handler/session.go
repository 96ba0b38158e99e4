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

type SessionHandler struct {
	service *service.SessionService
	logger  *zap.Logger
}

func NewSessionHandler(s *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{service: s, logger: logger.Named("session-handler")}
}

// Create принимает извлеченный документ и разворачивает его в сессию с запросами
// POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var doc domain.ExtractedDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if doc.DocumentName == "" {
		http.Error(w, "document_name is required", http.StatusBadRequest)
		return
	}

	session, requests, err := h.service.CreateFromDocument(r.Context(), &doc, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"session":  session,
		"requests": requests,
	})
}

// List возвращает последние сессии
// GET /v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// Get возвращает сессию вместе со всеми ее запросами
// GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, requests, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get session", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "failed to get session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"session":  session,
		"requests": requests,
	})
}

// Delete удаляет сессию со всеми запросами и журналом
// DELETE /v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete session", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApproveAll — массовое одобрение всех ожидающих запросов сессии
// POST /v1/sessions/{id}/approve-all
func (h *SessionHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	approved, err := h.service.ApproveAll(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("failed to approve all", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "failed to approve requests", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"approved": approved})
}

// Pause ставит сессию на паузу: текущий вызов доработает, следующий не стартует
// POST /v1/sessions/{id}/pause
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Resume снимает сессию с паузы
// POST /v1/sessions/{id}/resume
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *SessionHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id := chi.URLParam(r, "id")

	// Ждем и БД, и Redis publish: пауза должна дойти до движка немедленно
	if err := h.service.SetPaused(r.Context(), id, paused); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to toggle pause", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "failed to toggle pause", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
