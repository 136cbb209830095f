package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Решения политики: сколько ушло человеку, сколько одобрено автоматически
	DecisionsTotal *prometheus.CounterVec

	// Зафиксированные ревью и соблюдение SLA
	ReviewsTotal *prometheus.CounterVec

	// Latency ревью (от открытия до решения), по уровню риска
	ReviewDuration *prometheus.HistogramVec

	// Errors: классификация отказов по коду домена
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "governance_decisions_total",
			Help: "Policy decisions by risk level and outcome.",
		}, []string{"risk_level", "outcome"}), // outcome: review_required, auto_approved, escalated, quarantined

		ReviewsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "governance_reviews_total",
			Help: "Finalized human reviews by decision and SLA outcome.",
		}, []string{"decision", "met_sla"}),

		ReviewDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "governance_review_duration_seconds",
			Help:    "Time reviewers spent before submitting a decision.",
			Buckets: []float64{30, 60, 300, 900, 1800, 3600, 4 * 3600, 8 * 3600, 24 * 3600, 48 * 3600},
		}, []string{"risk_level"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "governance_errors_total",
			Help: "Total number of errors by domain error code.",
		}, []string{"code"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "governance_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "governance_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}

// WatchAuditBuffer периодически выставляет AuditBufferFill; блокирует до отмены ctx
func (m *Metrics) WatchAuditBuffer(ctx context.Context, pending func() int, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.AuditBufferFill.Set(float64(pending()))
		}
	}
}
