package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/infra"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Executor — то, что мы оборачиваем (живой клиент или мок).
type Executor interface {
	Execute(ctx context.Context, method, url string, headers map[string]string, body map[string]any) (*domain.ExternalResult, error)
}

// ProtectedClient защищает инстанс ServiceNow от нас самих:
// лимитер сглаживает всплески, предохранитель отключает трафик при серии
// сбоев. Ретраев здесь НЕТ — повтор мутации возможен только явным
// действием оператора через движок.
type ProtectedClient struct {
	next    Executor
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewProtectedClient(next Executor, cfg infra.ServiceNowConfig, onStateChange func(open bool)) *ProtectedClient {
	cbTimeout := cfg.CBTimeout
	if cbTimeout <= 0 {
		cbTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "servicenow-connector",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     cbTimeout, // Время, через которое CB попробует «закрыться»
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onStateChange != nil {
				onStateChange(to == gobreaker.StateOpen)
			}
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if limit <= 0 {
		limit = rate.Limit(10)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 5
	}

	return &ProtectedClient{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (p *ProtectedClient) Execute(ctx context.Context, method, url string, headers map[string]string, body map[string]any) (*domain.ExternalResult, error) {
	// 1. Rate Limiter
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	result, err := p.cb.Execute(func() (interface{}, error) {
		return p.next.Execute(ctx, method, url, headers, body)
	})
	if err != nil {
		return nil, err
	}

	return result.(*domain.ExternalResult), nil
}
