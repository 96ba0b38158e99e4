package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListenStateResilient — живучая подписка на сигналы Redis.
// Переподключается при обрыве, при каждом успешном коннекте вызывает
// onReconnect для пересинхронизации L1-кэша с БД.
// Формат сообщений не знает: payload разбирает подписчик.
func ListenStateResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onReconnect func() error,
	onMessage func(payload string),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				onMessage(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// WarmupState — прогрев L1 (RAM) и L2 (Redis) кэшей из БД при старте.
// Распределенная блокировка гарантирует, что Redis греет только один инстанс.
func WarmupState(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	ids []string,
	redisKey string,
	lockKey string,
	updateL1 func([]string), // Callback для обновления локальной мапы
) error {
	// 1. Обновляем локальный кэш (L1) через callback
	updateL1(ids)

	// 2. Распределенная блокировка (SetNX)
	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой инстанс уже греет кэш
	}

	// 3. Проверка наполненности Redis
	count, err := rdb.SCard(ctx, redisKey).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check Redis set size, proceeding with warm-up",
			zap.String("key", redisKey), zap.Error(err))
	}

	// 4. Если Redis пуст, а данные в БД есть — заливаем
	if count == 0 && len(ids) > 0 {
		logger.Info("Redis cache is empty, performing warm-up from DB...",
			zap.String("key", redisKey), zap.Int("count", len(ids)))

		pipe := rdb.Pipeline()
		for _, id := range ids {
			pipe.SAdd(ctx, redisKey, id)
		}
		_, err = pipe.Exec(ctx)
		return err
	}

	return nil
}
