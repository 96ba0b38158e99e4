package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
)

// DashboardProvider описываем, что нам нужно от хранилища
type DashboardProvider interface {
	GetUnifiedDashboard(ctx context.Context) (*domain.UnifiedDashboard, error)
}

type DashboardHandler struct {
	provider DashboardProvider
}

func NewDashboardHandler(p DashboardProvider) *DashboardHandler {
	return &DashboardHandler{provider: p}
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.provider.GetUnifiedDashboard(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
