package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/audit"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/connectors"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/console/handler"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/console/server"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/console/service"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/engine"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra/auth"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/repository/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин.
	// При срабатывании SIGTERM cancel() остановит слушателей.
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	repo, err := postgres.NewRepo(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to init postgres pool", zap.Error(err))
	}
	defer repo.Close()

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := repo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 3. Журнал аудита: данные летят в базу пачками
	trail := audit.NewTrail(repo, logger,
		cfg.Engine.AuditBufferSize, cfg.Engine.AuditBatchSize, cfg.Engine.AuditFlushInterval)
	trail.Start()
	defer trail.Stop()

	// 4. Control Plane: паузы сессий (L1 кэш + Redis Pub/Sub)
	pm := engine.NewPauseManager(rdb, repo, logger)
	if err := pm.Init(appCtx); err != nil {
		logger.Fatal("failed to init pause manager", zap.Error(err))
	}
	go pm.StartListener(appCtx)

	// 5. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics exporter started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics exporter stopped", zap.Error(err))
		}
	}()

	// Заполненность буфера аудита снимаем опросом
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.AuditBufferFill.Set(float64(trail.Depth()))
			case <-appCtx.Done():
				return
			}
		}
	}()

	// 6. Execution Layer: коннектор + защита (Circuit Breaker, Rate Limiter)
	var raw connectors.Executor
	var pinger service.InstancePinger
	if cfg.ServiceNow.BaseURL == "" {
		// Без инстанса работаем на моке: удобно для локальной разработки
		logger.Warn("servicenow.base_url is empty, using in-process mock instance")
		mock := &connectors.MockTableAPI{}
		raw, pinger = mock, mock
	} else {
		snc := connectors.NewServiceNowClient(cfg.ServiceNow, logger)
		raw, pinger = snc, snc
	}

	safeClient := connectors.NewProtectedClient(raw, cfg.ServiceNow, func(open bool) {
		if open {
			metrics.CircuitBreakerState.Set(1)
		} else {
			metrics.CircuitBreakerState.Set(0)
		}
	})

	// 7. Ключи RS256
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse auth public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse auth private key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)

	// 8. Инициализация слоев (Dependency Injection)
	sessionService := service.NewSessionService(repo, rdb, trail, logger)
	executionService := service.NewExecutionService(repo, safeClient, pinger, trail, pm, metrics, rdb, logger)
	auditService := service.NewAuditService(repo)
	authService := service.NewAuthService(repo, privateKey, cfg.Auth.TokenTTL)

	consoleSrv := server.NewConsoleServer(
		cfg,
		logger,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewSessionHandler(sessionService, logger),
		handler.NewRequestHandler(sessionService, logger),
		handler.NewExecutionHandler(executionService, logger),
		handler.NewAuditHandler(auditService),
		handler.NewDashboardHandler(repo),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("console API stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("console API exited properly")
}
