package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полное время внешнего вызова (включая коннектор)
	RequestDuration *prometheus.HistogramVec

	// Traffic: сколько запросов прогнали через движок
	TotalRequests *prometheus.CounterVec

	// Сколько ручных повторов запустили операторы
	RetryTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker коннектора (0 - ок, 1 - выбило)
	CircuitBreakerState prometheus.Gauge

	// Audit: заполненность буфера журнала (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если рег не передан, используем локальный,
	// который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sync_request_duration_seconds",
			Help:    "Histogram of external call latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"entity_type", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sync_requests_total",
			Help: "Total number of executed requests.",
		}, []string{"entity_type"}),

		RetryTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sync_retries_total",
			Help: "Total number of operator-triggered retries.",
		}, []string{"entity_type", "status"}),

		CircuitBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sync_circuit_breaker_state",
			Help: "Current state of the connector circuit breaker (0=closed, 1=open).",
		}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sync_audit_buffer_utilization",
			Help: "Current number of entries in the audit trail buffer.",
		}),
	}
}
