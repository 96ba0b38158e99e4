package engine

/*
Файл executor.go — ядро движка выполнения. Принимает батч запросов,
выстраивает безопасный порядок, непосредственно перед каждым вызовом
перерешает плейсхолдеры по актуальной карте результатов, выполняет вызов
внешней системы и ведет запрос по конечному автомату
pending -> approved -> executing -> {success | failed}.

Выполнение строго последовательное: в полете не бывает больше одного
запроса. Это осознанное упрощение — запрос N может зависеть от sys_id,
который вернет только запрос N-1.

Движок не знает про HTTP-слой консоли и не трогает UI: все переходы
статусов транслируются наружу через Observer, все исходы — через журнал
аудита. Ошибки выполнения представлены данными (статус + запись журнала),
наружу как error уходят только структурные проблемы батча.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/audit"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"go.uber.org/zap"
)

// Client — контракт внешнего HTTP-клиента (ServiceNow Table API).
// Транспортные ретраи мутаций запрещены: повтор — только явный, от оператора.
type Client interface {
	Execute(ctx context.Context, method, url string, headers map[string]string, body map[string]any) (*domain.ExternalResult, error)
}

// Observer получает каждый переход статуса синхронно, до следующего шага
// батча. Презентационный слой (и персистентность) подписываются здесь.
type Observer interface {
	OnTransition(req *domain.Request)
}

// Pauser отвечает на вопрос «ставить ли следующий запрос».
// Пауза никогда не прерывает запрос, который уже в полете.
type Pauser interface {
	IsPaused(sessionID string) bool
}

// Mode — политика поведения батча при ошибке отдельного запроса.
type Mode struct {
	StopOnError bool
}

var (
	// ModeApproved — «выполнить все одобренные»: ошибка останавливает батч
	ModeApproved = Mode{StopOnError: true}
	// ModePending — «выполнить все ожидающие»: ошибки изолируются, батч идет дальше
	ModePending = Mode{StopOnError: false}
)

type Engine struct {
	client  Client
	trail   audit.Recorder
	pauser  Pauser   // nil = пауза не используется
	obs     Observer // nil = переходы никому не нужны
	metrics *Metrics
	logger  *zap.Logger

	// Карта завершенных результатов: entityType -> последний успешный.
	// Принадлежит экземпляру движка, не пакету (никаких синглтонов).
	// Пишет сюда только сам driver loop; резолвер читает снапшот.
	completed map[string]*domain.ExternalResult
}

func NewEngine(client Client, trail audit.Recorder, pauser Pauser, obs Observer, metrics *Metrics, logger *zap.Logger) *Engine {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		client:    client,
		trail:     trail,
		pauser:    pauser,
		obs:       obs,
		metrics:   metrics,
		logger:    logger.Named("executor"),
		completed: make(map[string]*domain.ExternalResult),
	}
}

// Seed загружает в карту результаты прошлых успешных прогонов
// (частичный прогон, прошлая сессия работы с документом).
// Last-write-wins: при нескольких успехах одного типа побеждает самый свежий.
func (e *Engine) Seed(requests []*domain.Request) {
	latest := make(map[string]time.Time, len(requests))
	for _, r := range requests {
		if r.Status != domain.StatusSuccess || r.Response == nil {
			continue
		}
		var at time.Time
		if r.ExecutedAt != nil {
			at = *r.ExecutedAt
		}
		if seen, ok := latest[r.EntityType]; ok && seen.After(at) {
			continue
		}
		latest[r.EntityType] = at
		e.completed[r.EntityType] = r.Response
	}
}

// snapshot отдает копию карты результатов. Резолвер и dry-run работают
// со снапшотом, чтобы параллельная валидация не гонялась с прогоном.
func (e *Engine) snapshot() map[string]*domain.ExternalResult {
	out := make(map[string]*domain.ExternalResult, len(e.completed))
	for k, v := range e.completed {
		out[k] = v
	}
	return out
}

// RunBatch прогоняет батч в порядке зависимостей.
// Структурная ошибка (цикл) возвращается ДО единого сетевого вызова.
// Ошибки отдельных запросов остаются данными на самих запросах.
func (e *Engine) RunBatch(ctx context.Context, requests []*domain.Request, mode Mode) error {
	ordered, err := SortByDependency(requests)
	if err != nil {
		return err
	}

	e.Seed(requests)

	for _, req := range ordered {
		if ctx.Err() != nil {
			e.logger.Warn("batch interrupted by context", zap.String("session_id", sessionOf(ordered)))
			return ctx.Err()
		}

		// Пауза блокирует СТАРТ следующего запроса; остальные остаются
		// в своих статусах нетронутыми
		if e.pauser != nil && e.pauser.IsPaused(req.SessionID) {
			e.logger.Info("batch paused by operator",
				zap.String("session_id", req.SessionID),
				zap.String("next_request", req.ID))
			return nil
		}

		if req.CanTransitionTo(domain.StatusExecuting) != nil {
			// Уже success или в полете — батч материализован из устаревшего
			// среза статусов, просто пропускаем
			e.logger.Warn("request skipped: not runnable",
				zap.String("request_id", req.ID),
				zap.String("status", string(req.Status)))
			continue
		}

		ok := e.executeOne(ctx, req, false)
		if !ok && mode.StopOnError {
			e.logger.Info("batch halted on error",
				zap.String("session_id", req.SessionID),
				zap.String("failed_request", req.ID))
			return nil
		}
	}
	return nil
}

// Retry повторяет ОДИН упавший запрос. Сортировка зависимостей не нужна:
// перерешаем исходный шаблон по самой свежей карте результатов и стреляем.
// Повтор зарезервирован строго за failed: pending и approved проходят
// только через батч с его ревью и порядком зависимостей.
func (e *Engine) Retry(ctx context.Context, req *domain.Request) error {
	if req.Status != domain.StatusFailed {
		return fmt.Errorf("retry %s: %w", req.ID, domain.ErrInvalidTransition)
	}
	e.executeOne(ctx, req, true)
	return nil
}

// executeOne — общий путь батча и ретрая: resolve -> executing -> вызов ->
// классификация -> аудит. Возвращает true при успехе.
func (e *Engine) executeOne(ctx context.Context, req *domain.Request, isRetry bool) bool {
	e.metrics.TotalRequests.WithLabelValues(req.EntityType).Inc()

	// 1. Разрешение плейсхолдеров — всегда от канонического шаблона.
	// Результат уходит в ModifiedBody, шаблон остается для будущих ретраев.
	req.ModifiedBody = Resolve(req.Template(), e.snapshot())
	for _, field := range UnresolvedTokens(req.ModifiedBody) {
		// Неразрешенный токен не фатален (уйдет литеральной строкой),
		// но оператор должен увидеть это в логах
		e.logger.Warn("placeholder left unresolved before call",
			zap.String("request_id", req.ID),
			zap.String("field", field))
	}

	// 2. Переход в executing. Отдельной записи аудита нет — вхождение
	// в выполнение неявно в последующем success/failed. Но статус
	// обновляется синхронно, наблюдатели видят «в полете».
	req.Status = domain.StatusExecuting
	e.notify(req)

	// 3. Вызов внешней системы
	start := time.Now()
	result, callErr := e.client.Execute(ctx, req.Method, req.URL, req.Headers, req.ModifiedBody)
	duration := time.Since(start)

	now := time.Now()
	req.ExecutedAt = &now

	// 4. Классификация: успех <=> код в [200, 300) и нет транспортной ошибки.
	// Исключение клиента не отличаем от HTTP-ошибки.
	if callErr != nil {
		result = &domain.ExternalResult{Err: callErr.Error()}
	}
	req.Response = result

	if result.Succeeded() {
		// 5. Успех: запоминаем результат для зависимых (last-write-wins)
		e.completed[req.EntityType] = result
		req.Status = domain.StatusSuccess

		sysID := result.SysID
		if sysID == "" {
			sysID = "N/A"
		}
		e.appendAudit(req, successAction(isRetry),
			fmt.Sprintf("%s %s -> %d, sys_id: %s", req.Method, req.URL, result.Status, sysID),
			duration)
	} else {
		// 6. Ошибка изолируется на запросе; решает политика батча
		req.Status = domain.StatusFailed
		e.appendAudit(req, failureAction(isRetry), failureDetails(req, result), duration)
	}

	e.metrics.RequestDuration.WithLabelValues(req.EntityType, string(req.Status)).Observe(duration.Seconds())
	if isRetry {
		e.metrics.RetryTotal.WithLabelValues(req.EntityType, string(req.Status)).Inc()
	}

	e.notify(req)
	return req.Status == domain.StatusSuccess
}

func (e *Engine) appendAudit(req *domain.Request, action, details string, d time.Duration) {
	e.trail.Append(audit.AuditEntry{
		SessionID:  req.SessionID,
		RequestID:  req.ID,
		Action:     action,
		Details:    details,
		DurationMs: d.Milliseconds(),
	})
}

func (e *Engine) notify(req *domain.Request) {
	if e.obs != nil {
		e.obs.OnTransition(req)
	}
}

func successAction(isRetry bool) string {
	if isRetry {
		return audit.ActionRetrySuccess
	}
	return audit.ActionRequestSuccess
}

func failureAction(isRetry bool) string {
	if isRetry {
		return audit.ActionRetryFailed
	}
	return audit.ActionRequestFailed
}

func failureDetails(req *domain.Request, res *domain.ExternalResult) string {
	if res.Err != "" {
		return fmt.Sprintf("%s %s failed: %s", req.Method, req.URL, res.Err)
	}
	text := res.StatusText
	if text == "" {
		text = "error"
	}
	return fmt.Sprintf("%s %s -> %d %s", req.Method, req.URL, res.Status, text)
}

func sessionOf(requests []*domain.Request) string {
	if len(requests) > 0 {
		return requests[0].SessionID
	}
	return ""
}
