package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PauseProvider отдает ID сессий, поставленных на паузу (для прогрева кэша).
type PauseProvider interface {
	GetPausedSessions(ctx context.Context) ([]string, error)
}

// PauseSignal — сообщение канала пауз. Консоль публикует, движки применяют.
type PauseSignal struct {
	SessionID string `json:"session_id"`
	Paused    bool   `json:"paused"`
}

// PublishPause транслирует смену флага паузы всем инстансам движка.
func PublishPause(ctx context.Context, rdb *redis.Client, sessionID string, paused bool) error {
	payload, err := json.Marshal(PauseSignal{SessionID: sessionID, Paused: paused})
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, infra.RedisChanPause, payload).Err()
}

// PauseManager хранит флаги паузы в RAM (L1) и синхронизируется с другими
// инстансами через Redis (L2 + Pub/Sub). Движок спрашивает IsPaused перед
// стартом каждого следующего запроса батча — запрос в полете пауза
// не прерывает.
type PauseManager struct {
	repo   PauseProvider
	rdb    *redis.Client
	logger *zap.Logger

	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseManager(rdb *redis.Client, repo PauseProvider, logger *zap.Logger) *PauseManager {
	return &PauseManager{
		paused: make(map[string]bool),
		repo:   repo,
		rdb:    rdb,
		logger: logger.With(zap.String("mod", "pause")),
	}
}

// Init загружает состояние пауз при старте сервиса
func (pm *PauseManager) Init(ctx context.Context) error {
	ids, err := pm.repo.GetPausedSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch paused sessions from DB: %w", err)
	}

	return WarmupState(ctx, pm.rdb, pm.logger, ids, infra.RedisKeyPausedSessions, infra.RedisKeyLockWarmupPause, func(items []string) {
		pm.mu.Lock()
		defer pm.mu.Unlock()
		for _, id := range items {
			pm.paused[id] = true
		}
	})
}

// StartListener подписывается на сигналы паузы в реальном времени
func (pm *PauseManager) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, pm.rdb, pm.logger, infra.RedisChanPause,
		func() error { return pm.Init(ctx) }, // Переподключение
		pm.handleSignal,
	)
}

// handleSignal применяет сигнал паузы к L1-кэшу. Нечитаемый payload
// логируется и пропускается: лучше пропустить сигнал, чем уронить слушателя.
func (pm *PauseManager) handleSignal(payload string) {
	var sig PauseSignal
	if err := json.Unmarshal([]byte(payload), &sig); err != nil || sig.SessionID == "" {
		pm.logger.Error("invalid pause signal", zap.String("payload", payload), zap.Error(err))
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if sig.Paused {
		pm.paused[sig.SessionID] = true
	} else {
		delete(pm.paused, sig.SessionID)
	}
}

// IsPaused — Hot Path движка, только чтение из RAM
func (pm *PauseManager) IsPaused(sessionID string) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.paused[sessionID]
}
