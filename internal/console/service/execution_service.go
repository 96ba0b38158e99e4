package service

/*
Файл execution_service.go — мост между REST-консолью и движком выполнения.
Сервис материализует батч из актуального среза статусов, прогоняет его через
движок, персистит каждый переход статуса и транслирует события сессии в Redis
для живого UI. Сам движок про Postgres и Redis не знает ничего.
*/

import (
	"context"
	"fmt"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/audit"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/engine"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Режимы запуска батча (каждый со своей политикой обработки ошибок)
const (
	BatchModeApproved = "approved" // Все одобренные, stop-on-error
	BatchModePending  = "pending"  // Все ожидающие, continue-on-error
)

var ErrEmptyBatch = fmt.Errorf("no requests match the requested batch mode")

// ExecutionRepository — персистентность, нужная прогону
type ExecutionRepository interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListRequests(ctx context.Context, sessionID string) ([]*domain.Request, error)
	GetRequest(ctx context.Context, id string) (*domain.Request, error)
	UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error
	UpdateRequestStatus(ctx context.Context, id string, status domain.RequestStatus) error
	SaveExecution(ctx context.Context, req *domain.Request) error
}

// InstancePinger — пробник доступности инстанса (test-connection)
type InstancePinger interface {
	Ping(ctx context.Context) error
}

type ExecutionService struct {
	repo    ExecutionRepository
	client  engine.Client
	pinger  InstancePinger
	trail   audit.Recorder
	pauser  engine.Pauser
	metrics *engine.Metrics
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewExecutionService(
	repo ExecutionRepository,
	client engine.Client,
	pinger InstancePinger,
	trail audit.Recorder,
	pauser engine.Pauser,
	metrics *engine.Metrics,
	rdb *redis.Client,
	logger *zap.Logger,
) *ExecutionService {
	return &ExecutionService{
		repo:    repo,
		client:  client,
		pinger:  pinger,
		trail:   trail,
		pauser:  pauser,
		metrics: metrics,
		rdb:     rdb,
		logger:  logger.Named("execution-service"),
	}
}

// persistObserver сохраняет каждый переход статуса синхронно, до следующего
// шага батча: параллельные наблюдатели видят «в полете» сразу.
type persistObserver struct {
	ctx    context.Context
	repo   ExecutionRepository
	logger *zap.Logger
}

func (o *persistObserver) OnTransition(req *domain.Request) {
	var err error
	if req.Status == domain.StatusExecuting {
		err = o.repo.UpdateRequestStatus(o.ctx, req.ID, req.Status)
	} else {
		err = o.repo.SaveExecution(o.ctx, req)
	}
	if err != nil {
		// Движок не останавливаем: исход вызова важнее записи о нем,
		// а журнал аудита ведется независимо
		o.logger.Error("failed to persist request transition",
			zap.String("request_id", req.ID),
			zap.String("status", string(req.Status)),
			zap.Error(err))
	}
}

func (s *ExecutionService) newEngine(ctx context.Context) *engine.Engine {
	obs := &persistObserver{ctx: ctx, repo: s.repo, logger: s.logger}
	return engine.NewEngine(s.client, s.trail, s.pauser, obs, s.metrics, s.logger)
}

// RunBatch выполняет батч сессии.
// mode=approved: только одобренные, остановка на первой ошибке.
// mode=pending: все ожидающие, ошибки изолируются.
// Структурная ошибка (цикл зависимостей) возвращается до первого вызова.
func (s *ExecutionService) RunBatch(ctx context.Context, sessionID, mode string) ([]*domain.Request, error) {
	var want domain.RequestStatus
	var policy engine.Mode
	switch mode {
	case BatchModeApproved:
		want, policy = domain.StatusApproved, engine.ModeApproved
	case BatchModePending:
		want, policy = domain.StatusPending, engine.ModePending
	default:
		return nil, fmt.Errorf("unknown batch mode %q", mode)
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Батч всегда свежий: никакого персистентного «плана выполнения»
	all, err := s.repo.ListRequests(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	batch := make([]*domain.Request, 0, len(all))
	for _, r := range all {
		if r.Status == want {
			batch = append(batch, r)
		}
	}
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	s.setSessionStatus(ctx, session.ID, domain.SessionExecuting)

	eng := s.newEngine(ctx)
	eng.Seed(all) // Результаты прошлых частичных прогонов
	if err := eng.RunBatch(ctx, batch, policy); err != nil {
		// Структурная ошибка: статусы запросов не тронуты
		s.setSessionStatus(ctx, session.ID, domain.SessionReviewing)
		return nil, err
	}

	s.finalizeSession(ctx, session.ID)
	return batch, nil
}

// Retry повторяет один упавший запрос с перерешением исходного шаблона
// по самым свежим результатам.
func (s *ExecutionService) Retry(ctx context.Context, requestID string) (*domain.Request, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.ListRequests(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	eng := s.newEngine(ctx)
	eng.Seed(all)
	if err := eng.Retry(ctx, req); err != nil {
		return nil, err
	}

	s.finalizeSession(ctx, req.SessionID)
	return req, nil
}

// DryRun — проверка всего набора запросов сессии без сетевых вызовов.
func (s *ExecutionService) DryRun(ctx context.Context, sessionID string) ([]domain.DryRunResult, error) {
	all, err := s.repo.ListRequests(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	eng := s.newEngine(ctx)
	eng.Seed(all)
	return eng.DryRun(all), nil
}

// ExecutionOrder — предпросмотр порядка, в котором пойдет батч.
// Та же сортировка, что и в живом прогоне.
func (s *ExecutionService) ExecutionOrder(ctx context.Context, sessionID string) ([]*domain.Request, error) {
	all, err := s.repo.ListRequests(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return engine.SortByDependency(all)
}

// TestConnection — ручная проверка доступности инстанса из консоли.
func (s *ExecutionService) TestConnection(ctx context.Context) error {
	return s.pinger.Ping(ctx)
}

func (s *ExecutionService) setSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) {
	if err := s.repo.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		s.logger.Error("failed to update session status",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	s.trail.Append(audit.AuditEntry{
		SessionID:  sessionID,
		Action:     audit.ActionStatusChanged,
		Details:    fmt.Sprintf("session status -> %s", status),
		AfterValue: string(status),
	})

	// Живой UI слушает этот канал
	payload := fmt.Sprintf("%s:%s", sessionID, status)
	if err := s.rdb.Publish(ctx, infra.RedisChanSessionEvents, payload).Err(); err != nil {
		s.logger.Warn("session event delivery failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// finalizeSession пересчитывает статус сессии по фактическим исходам.
func (s *ExecutionService) finalizeSession(ctx context.Context, sessionID string) {
	all, err := s.repo.ListRequests(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to reload requests for finalize", zap.Error(err))
		return
	}

	succeeded, failed := 0, 0
	for _, r := range all {
		switch r.Status {
		case domain.StatusSuccess:
			succeeded++
		case domain.StatusFailed:
			failed++
		}
	}

	switch {
	case failed > 0:
		s.setSessionStatus(ctx, sessionID, domain.SessionFailed)
	case succeeded == len(all) && len(all) > 0:
		s.setSessionStatus(ctx, sessionID, domain.SessionCompleted)
		s.trail.Append(audit.AuditEntry{
			SessionID: sessionID,
			Action:    audit.ActionSessionCompleted,
			Details:   fmt.Sprintf("all %d request(s) succeeded", len(all)),
		})
	default:
		// Частичный прогон: остались pending/approved
		s.setSessionStatus(ctx, sessionID, domain.SessionReviewing)
	}
}
