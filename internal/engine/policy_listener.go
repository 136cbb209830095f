package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/copilot-governance/internal/infra"
	"go.uber.org/zap"
)

// PolicyRefresher: policy.Holder
type PolicyRefresher interface {
	Refresh(ctx context.Context) error
}

// PolicyListener держит снимок политики в актуальном состоянии:
// по сигналу из Redis и по таймеру (на случай потерянного сигнала).
type PolicyListener struct {
	holder      PolicyRefresher
	rdb         redis.UniversalClient
	reliability *ReliabilityWrapper
	interval    time.Duration
	logger      *zap.Logger
}

func NewPolicyListener(holder PolicyRefresher, rdb redis.UniversalClient, rw *ReliabilityWrapper, interval time.Duration, logger *zap.Logger) *PolicyListener {
	return &PolicyListener{
		holder:      holder,
		rdb:         rdb,
		reliability: rw,
		interval:    interval,
		logger:      logger.Named("policy-listener"),
	}
}

// Run блокирует до отмены ctx
func (l *PolicyListener) Run(ctx context.Context) {
	if l.interval > 0 {
		go l.tick(ctx)
	}
	ListenResilient(ctx, l.rdb, l.logger, infra.RedisChanPolicyUpdate, l.Refresh, func(string) {
		if err := l.Refresh(ctx); err != nil {
			l.logger.Error("policy refresh on signal failed", zap.Error(err))
		}
	})
}

// Refresh перечитывает политику через rate limit / breaker / retry
func (l *PolicyListener) Refresh(ctx context.Context) error {
	return l.reliability.Do(ctx, l.holder.Refresh)
}

func (l *PolicyListener) tick(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil {
				l.logger.Warn("periodic policy refresh failed", zap.Error(err))
			}
		}
	}
}
