package handler

import (
	"encoding/json"
	"net/http"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/console/service"

	"github.com/go-chi/chi/v5"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetEntries возвращает журнал сессии с поддержкой фильтрации по действию
// GET /v1/sessions/{id}/audit?action=...
func (h *AuditHandler) GetEntries(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	action := r.URL.Query().Get("action")

	entries, err := h.service.FetchEntries(r.Context(), sessionID, action)
	if err != nil {
		http.Error(w, "Failed to fetch audit entries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
