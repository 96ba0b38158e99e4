package service

import (
	"context"
	"fmt"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/audit"
)

// AuditLogProvider описывает контракт для чтения журнала аудита.
// Используем структуру AuditEntry из пакета audit, чтобы сохранить единую модель данных.
type AuditLogProvider interface {
	FetchEntries(ctx context.Context, sessionID, action string) ([]audit.AuditEntry, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchEntries запрашивает журнал сессии с опциональной фильтрацией по действию.
// Логика фильтрации (пустая строка или конкретное действие) инкапсулирована в репозитории.
func (s *AuditService) FetchEntries(ctx context.Context, sessionID, action string) ([]audit.AuditEntry, error) {
	entries, err := s.repo.FetchEntries(ctx, sessionID, action)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch entries: %w", err)
	}
	return entries, nil
}
