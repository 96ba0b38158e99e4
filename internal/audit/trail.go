package audit

/*
Файл trail.go реализует журнал аудита (Audit Trail) — append-only историю
всего, что происходило с запросами сессии.

Ключевые особенности архитектуры:
- Non-blocking Logging: движок выполнения пишет события через неблокирующий
  канал. Задержки Postgres не влияют на время прогона батча.
- Batching & Efficiency: события копятся в памяти и уходят в БД пакетами
  (Bulk Insert) по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке сервиса буфер вычитывается
  до конца (Final Flush), записи не теряются при перезагрузке.
- Записи никогда не изменяются и не переупорядочиваются; удаление возможно
  только вместе с сессией-владельцем.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться записи
type StorageInterface interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, entries []AuditEntry) error
}

// Recorder — контракт для продюсеров (движок выполнения, слой сессий).
type Recorder interface {
	Append(entry AuditEntry) AuditEntry
}

type Trail struct {
	ch     chan AuditEntry  // Буфер для асинхронности
	repo   StorageInterface // Интерфейс для Postgres
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize int
	interval  time.Duration

	// Защита от Append после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewTrail(repo StorageInterface, logger *zap.Logger, bufferSize, batchSize int, interval time.Duration) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Trail{
		ch:        make(chan AuditEntry, bufferSize),
		repo:      repo,
		logger:    logger.With(zap.String("mod", "audit-trail")),
		batchSize: batchSize,
		interval:  interval,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Append успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем (Drain Pattern). Завершение горутины происходит
	// исключительно через закрытие входного канала.
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

// Append присваивает записи ID и таймстемп и ставит ее в очередь на запись.
// Возвращает заполненную запись, чтобы вызывающий мог отдать ее в HTTP-ответ.
func (t *Trail) Append(entry AuditEntry) AuditEntry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit entry dropped: trail is stopping", zap.String("id", entry.ID))
		return entry
	}

	// используем стратегию Load Shedding (сброс нагрузки)
	select {
	case t.ch <- entry:
	default:
		// Если канал переполнен (Backpressure), фиксируем потерю в логе,
		// чтобы не терять причинность молча
		t.logger.Error("audit_buffer_overflow",
			zap.String("session_id", entry.SessionID),
			zap.String("action", entry.Action),
		)
	}
	return entry
}

// Depth — текущая заполненность буфера, снимается опросом для метрик
func (t *Trail) Depth() int {
	return len(t.ch)
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]AuditEntry, 0, t.batchSize)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background, так как основной контекст может быть уже закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case entry, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop() — вычитываем остатки и выходим
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
