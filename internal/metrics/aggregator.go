// Package metrics считает сводку качества ревью за окно времени.
package metrics

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"go.uber.org/zap"
)

// ReviewLister: минимум, который нужен от хранилища (ledger.Storage его покрывает).
type ReviewLister interface {
	ListReviews(ctx context.Context, scope string, start, end time.Time) ([]domain.HumanReview, error)
}

// MetricsQuerier: бэкенд умеет агрегировать на своей стороне (Postgres FILTER).
type MetricsQuerier interface {
	GetReviewMetrics(ctx context.Context, scope string, start, end time.Time) (domain.ReviewCounts, error)
}

type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int64         `mapstructure:"max_entries"`
}

type Aggregator struct {
	source ReviewLister
	cache  *ristretto.Cache[string, domain.ReviewMetrics]
	ttl    time.Duration
	logger *zap.Logger

	rates   *prometheus.GaugeVec
	latency *prometheus.GaugeVec
	total   *prometheus.GaugeVec
}

// NewAggregator: TTL <= 0 отключает кэш.
func NewAggregator(source ReviewLister, cfg CacheConfig, reg prometheus.Registerer, logger *zap.Logger) (*Aggregator, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	a := &Aggregator{
		source: source,
		ttl:    cfg.TTL,
		logger: logger.Named("metrics"),

		rates: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "governance_review_rate",
			Help: "Share of reviews by outcome in the last computed window.",
		}, []string{"scope", "kind"}), // kind: approval, rejection, modification, sla_compliance

		latency: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "governance_review_time_avg_seconds",
			Help: "Average review time in the last computed window.",
		}, []string{"scope"}),

		total: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "governance_reviews_in_window",
			Help: "Number of reviews in the last computed window.",
		}, []string{"scope"}),
	}

	if cfg.TTL > 0 {
		maxEntries := cfg.MaxEntries
		if maxEntries <= 0 {
			maxEntries = 1024
		}
		c, err := ristretto.NewCache(&ristretto.Config[string, domain.ReviewMetrics]{
			NumCounters: maxEntries * 10,
			MaxCost:     maxEntries,
			BufferItems: 64,
			// Стоимость записи = 1, считаем штуки, а не байты
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("metrics cache: %w", err)
		}
		a.cache = c
	}
	return a, nil
}

// Compute: метрики по ревью с ReviewedAt в [start, end].
func (a *Aggregator) Compute(ctx context.Context, scope string, start, end time.Time) (domain.ReviewMetrics, error) {
	if start.IsZero() || end.IsZero() {
		return domain.ReviewMetrics{}, domain.Validation("metrics window requires start and end")
	}
	if start.After(end) {
		return domain.ReviewMetrics{}, domain.Validation("metrics window start is after end")
	}

	key := cacheKey(scope, start, end)
	if a.cache != nil {
		if m, ok := a.cache.Get(key); ok {
			// Карта в кэше общая: наружу отдаем копию
			m.ReviewsByRiskLevel = maps.Clone(m.ReviewsByRiskLevel)
			return m, nil
		}
	}

	counts, err := a.counts(ctx, scope, start, end)
	if err != nil {
		return domain.ReviewMetrics{}, domain.Backend("compute review metrics", err)
	}
	m := counts.Metrics()

	if a.cache != nil {
		cached := m
		cached.ReviewsByRiskLevel = maps.Clone(m.ReviewsByRiskLevel)
		a.cache.SetWithTTL(key, cached, 1, a.ttl)
		a.cache.Wait()
	}
	a.export(scope, m)

	a.logger.Debug("review metrics computed",
		zap.String("scope", scope),
		zap.Int64("total", m.TotalReviews),
		zap.Float64("sla_compliance", m.SLAComplianceRate))
	return m, nil
}

func (a *Aggregator) counts(ctx context.Context, scope string, start, end time.Time) (domain.ReviewCounts, error) {
	if q, ok := a.source.(MetricsQuerier); ok {
		return q.GetReviewMetrics(ctx, scope, start, end)
	}

	reviews, err := a.source.ListReviews(ctx, scope, start, end)
	if err != nil {
		return domain.ReviewCounts{}, err
	}
	var c domain.ReviewCounts
	for _, r := range reviews {
		c.Add(r)
	}
	return c, nil
}

// Invalidate сбрасывает кэш после новой фиксации ревью.
func (a *Aggregator) Invalidate() {
	if a.cache != nil {
		a.cache.Clear()
	}
}

func (a *Aggregator) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
}

func (a *Aggregator) export(scope string, m domain.ReviewMetrics) {
	label := scope
	if label == "" {
		label = "all"
	}
	a.rates.WithLabelValues(label, "approval").Set(m.ApprovalRate)
	a.rates.WithLabelValues(label, "rejection").Set(m.RejectionRate)
	a.rates.WithLabelValues(label, "modification").Set(m.ModificationRate)
	a.rates.WithLabelValues(label, "sla_compliance").Set(m.SLAComplianceRate)
	a.latency.WithLabelValues(label).Set(m.AvgReviewTimeSeconds)
	a.total.WithLabelValues(label).Set(float64(m.TotalReviews))
}

func cacheKey(scope string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", scope, start.UnixNano(), end.UnixNano())
}
