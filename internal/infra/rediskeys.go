package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "snowsync"
)

// Ключи для Sets (состояние)
const (
	RedisKeyPausedSessions  = RedisNamespace + ":sessions:paused_set"
	RedisKeyLockWarmupPause = RedisNamespace + ":lock:warmup:paused"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanPause — трансляция пауз/возобновлений прогона между инстансами
	RedisChanPause = RedisNamespace + ":sessions:pause-signal"
	// RedisChanSessionEvents — уведомления UI о смене статусов сессий
	RedisChanSessionEvents = RedisNamespace + ":sessions:events"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
