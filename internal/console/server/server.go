package server

import (
	"net/http"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/console/handler"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler      *handler.AuthHandler      // /auth/token
	sessionHandler   *handler.SessionHandler   // /v1/sessions
	requestHandler   *handler.RequestHandler   // /v1/requests
	executionHandler *handler.ExecutionHandler // выполнение, retry, dry-run
	auditHandler     *handler.AuditHandler     // /v1/sessions/{id}/audit
	dashHandler      *handler.DashboardHandler // /api/v1/dashboard
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	sessionH *handler.SessionHandler,
	requestH *handler.RequestHandler,
	executionH *handler.ExecutionHandler,
	auditH *handler.AuditHandler,
	dashH *handler.DashboardHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:           chi.NewRouter(),
		logger:           logger.Named("console-api"),
		cfg:              cfg,
		authValidator:    validator,
		authHandler:      authH,
		sessionHandler:   sessionH,
		requestHandler:   requestH,
		executionHandler: executionH,
		auditHandler:     auditH,
		dashHandler:      dashH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (требует RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Сессии синхронизации: жизненный цикл и запуск
		r.Route("/v1/sessions", func(r chi.Router) {
			r.Get("/", s.sessionHandler.List)
			r.Post("/", s.sessionHandler.Create) // Развернуть документ в запросы
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.sessionHandler.Get)
				r.Delete("/", s.sessionHandler.Delete)
				r.Post("/approve-all", s.sessionHandler.ApproveAll)
				r.Post("/pause", s.sessionHandler.Pause)   // Останавливает СЛЕДУЮЩИЙ вызов
				r.Post("/resume", s.sessionHandler.Resume)
				r.Post("/execute", s.executionHandler.Execute) // ?mode=approved|pending
				r.Post("/dry-run", s.executionHandler.DryRun)
				r.Get("/execution-order", s.executionHandler.Order)
				r.Get("/audit", s.auditHandler.GetEntries)
			})
		})

		// Отдельные запросы: правка, ревью, повтор
		r.Route("/v1/requests", func(r chi.Router) {
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/body", s.requestHandler.EditBody)
				r.Post("/approve", s.requestHandler.Approve)
				r.Post("/reject", s.requestHandler.Reject)
				r.Post("/retry", s.executionHandler.Retry)
				r.Delete("/", s.requestHandler.Remove)
			})
		})

		// Проверка доступности внешнего инстанса
		r.Post("/v1/connection/test", s.executionHandler.TestConnection)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
