package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/copilot-governance/internal/domain"
)

func fastConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Name:       "test",
		Attempts:   3,
		RetryDelay: time.Millisecond,
		CBFailures: 1,
		CBTimeout:  time.Minute,
	}
}

func TestReliability_RetriesBackendErrors(t *testing.T) {
	w := NewReliabilityWrapper(fastConfig(), NewMetrics(nil))
	calls := 0
	err := w.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return domain.Backend("load review policy", errors.New("timeout"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestReliability_DoesNotRetryFinalErrors(t *testing.T) {
	w := NewReliabilityWrapper(fastConfig(), nil)
	calls := 0
	err := w.Do(context.Background(), func(context.Context) error {
		calls++
		return domain.Config("review_sla_hours must be decreasing")
	})
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Equal(t, 1, calls)
	assert.Equal(t, gobreaker.StateClosed, w.State(), "final errors do not trip the breaker")
}

func TestReliability_BreakerOpensAfterFailures(t *testing.T) {
	cfg := fastConfig()
	cfg.Attempts = 1
	w := NewReliabilityWrapper(cfg, NewMetrics(nil))
	ctx := context.Background()
	failing := func(context.Context) error { return domain.Backend("publish", errors.New("down")) }

	assert.Error(t, w.Do(ctx, failing))
	assert.Error(t, w.Do(ctx, failing))
	assert.Equal(t, gobreaker.StateOpen, w.State())

	called := false
	err := w.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
}

func TestReliability_CallTimeoutIsApplied(t *testing.T) {
	cfg := fastConfig()
	cfg.Attempts = 1
	cfg.CallTimeout = 10 * time.Millisecond
	w := NewReliabilityWrapper(cfg, nil)

	err := w.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return domain.Backend("slow call", ctx.Err())
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
