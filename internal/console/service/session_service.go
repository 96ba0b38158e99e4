package service

import (
	"context"
	"fmt"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/audit"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/engine"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionRepository описывает требования сервиса к хранилищу
type SessionRepository interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListSessions(ctx context.Context) ([]*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
	UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error
	SetSessionPaused(ctx context.Context, id string, paused bool) error

	InsertRequests(ctx context.Context, requests []*domain.Request) error
	ListRequests(ctx context.Context, sessionID string) ([]*domain.Request, error)
	GetRequest(ctx context.Context, id string) (*domain.Request, error)
	UpdateRequestBody(ctx context.Context, id string, body map[string]any) error
	UpdateRequestStatus(ctx context.Context, id string, status domain.RequestStatus) error
	ApproveAllPending(ctx context.Context, sessionID string) (int64, error)
	DeleteRequest(ctx context.Context, id string) error
}

type SessionService struct {
	repo   SessionRepository
	rdb    *redis.Client
	trail  audit.Recorder
	logger *zap.Logger
}

func NewSessionService(repo SessionRepository, rdb *redis.Client, trail audit.Recorder, logger *zap.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		rdb:    rdb,
		trail:  trail,
		logger: logger.Named("session-service"),
	}
}

// CreateFromDocument материализует сессию из извлеченных сущностей документа.
// Каждый созданный запрос попадает в журнал аудита — история батча начинается
// с первого REQUEST_ADDED.
func (s *SessionService) CreateFromDocument(ctx context.Context, doc *domain.ExtractedDocument, createdBy string) (*domain.Session, []*domain.Request, error) {
	session := &domain.Session{
		ID:           uuid.New().String(),
		DocumentName: doc.DocumentName,
		CreatedBy:    createdBy,
		Status:       domain.SessionDraft,
	}

	requests := BuildRequests(session.ID, doc)
	if len(requests) == 0 {
		return nil, nil, fmt.Errorf("document %q contains no extractable entities", doc.DocumentName)
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, nil, err
	}
	if err := s.repo.InsertRequests(ctx, requests); err != nil {
		return nil, nil, err
	}

	s.trail.Append(audit.AuditEntry{
		SessionID: session.ID,
		Action:    audit.ActionSessionCreated,
		Details:   fmt.Sprintf("session created from document %q by %s, %d request(s)", doc.DocumentName, createdBy, len(requests)),
	})
	for _, req := range requests {
		s.trail.Append(audit.AuditEntry{
			SessionID:  session.ID,
			RequestID:  req.ID,
			Action:     audit.ActionRequestAdded,
			Details:    fmt.Sprintf("%s %s (%s)", req.Method, req.URL, req.EntityType),
			AfterValue: req.Body,
		})
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("document", doc.DocumentName),
		zap.Int("requests", len(requests)))

	return session, requests, nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (*domain.Session, []*domain.Request, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	requests, err := s.repo.ListRequests(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return session, requests, nil
}

func (s *SessionService) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		s.logger.Error("failed to list sessions", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession — единственный способ уничтожить запросы и журнал аудита.
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// SetPaused ставит прогон на паузу или снимает с нее. Обновляет БД
// и транслирует сигнал всем инстансам движка через Redis.
// Пауза блокирует только СТАРТ следующего запроса батча.
func (s *SessionService) SetPaused(ctx context.Context, id string, paused bool) error {
	// 1. Persistence Layer
	if err := s.repo.SetSessionPaused(ctx, id, paused); err != nil {
		s.logger.Error("failed to update pause flag in DB",
			zap.String("session_id", id), zap.Error(err))
		return err
	}

	// 2. Real-time Signaling
	if err := engine.PublishPause(ctx, s.rdb, id, paused); err != nil {
		s.logger.Warn("pause signal delivery failed",
			zap.String("session_id", id), zap.Error(err))
	}

	s.logger.Info("session pause toggled",
		zap.String("session_id", id), zap.Bool("paused", paused))
	return nil
}

// EditRequestBody заменяет шаблон тела запроса по решению оператора.
// Снимки до/после уходят в журнал — правки никогда не анонимны.
func (s *SessionService) EditRequestBody(ctx context.Context, requestID string, body map[string]any, editor string) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status == domain.StatusExecuting || req.Status == domain.StatusSuccess {
		return domain.ErrInvalidTransition
	}

	if err := s.repo.UpdateRequestBody(ctx, requestID, body); err != nil {
		return err
	}

	s.trail.Append(audit.AuditEntry{
		SessionID:   req.SessionID,
		RequestID:   req.ID,
		Action:      audit.ActionRequestModified,
		Details:     fmt.Sprintf("body edited by %s", editor),
		BeforeValue: req.Body,
		AfterValue:  body,
	})
	return nil
}

// ApproveRequest переводит запрос pending -> approved.
func (s *SessionService) ApproveRequest(ctx context.Context, requestID, reviewer string) error {
	return s.transitionRequest(ctx, requestID, domain.StatusApproved, reviewer)
}

// RejectRequest возвращает одобренный запрос в pending.
func (s *SessionService) RejectRequest(ctx context.Context, requestID, reviewer string) error {
	return s.transitionRequest(ctx, requestID, domain.StatusPending, reviewer)
}

func (s *SessionService) transitionRequest(ctx context.Context, requestID string, next domain.RequestStatus, reviewer string) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if err := req.CanTransitionTo(next); err != nil {
		return err
	}
	if err := s.repo.UpdateRequestStatus(ctx, requestID, next); err != nil {
		return err
	}

	s.trail.Append(audit.AuditEntry{
		SessionID:   req.SessionID,
		RequestID:   req.ID,
		Action:      audit.ActionStatusChanged,
		Details:     fmt.Sprintf("status changed by %s", reviewer),
		BeforeValue: string(req.Status),
		AfterValue:  string(next),
	})
	return nil
}

// ApproveAll — массовое одобрение всех pending запросов сессии.
func (s *SessionService) ApproveAll(ctx context.Context, sessionID, reviewer string) (int64, error) {
	n, err := s.repo.ApproveAllPending(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.trail.Append(audit.AuditEntry{
			SessionID: sessionID,
			Action:    audit.ActionStatusChanged,
			Details:   fmt.Sprintf("%d request(s) bulk-approved by %s", n, reviewer),
		})
	}
	return n, nil
}

// RemoveRequest удаляет запрос. Запрос в полете удалить нельзя —
// запрет продублирован и в сервисе, и условием в БД.
func (s *SessionService) RemoveRequest(ctx context.Context, requestID, operator string) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !req.Removable() {
		return domain.ErrRemoveExecuting
	}

	if err := s.repo.DeleteRequest(ctx, requestID); err != nil {
		return err
	}

	s.trail.Append(audit.AuditEntry{
		SessionID:   req.SessionID,
		RequestID:   req.ID,
		Action:      audit.ActionRequestRemoved,
		Details:     fmt.Sprintf("%s request removed by %s", req.EntityType, operator),
		BeforeValue: req.Body,
	})
	return nil
}
