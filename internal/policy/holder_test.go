package policy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"go.uber.org/zap"
)

type stubSource struct {
	cfg domain.ReviewPolicyConfig
	err error
}

func (s *stubSource) LoadPolicy(context.Context) (domain.ReviewPolicyConfig, error) {
	return s.cfg, s.err
}

func TestHolder_RefreshSwapsSnapshot(t *testing.T) {
	next := domain.DefaultReviewPolicy()
	next.AutoApproveLowRisk = false
	src := &stubSource{cfg: next}

	h := NewHolder(defaultSnapshot(t), src, zap.NewNop())
	assert.False(t, h.Snapshot().Decide(domain.RiskLow, domain.ConfidenceVeryHigh, "x").Required)

	require.NoError(t, h.Refresh(context.Background()))
	assert.True(t, h.Snapshot().Decide(domain.RiskLow, domain.ConfidenceVeryHigh, "x").Required)
}

func TestHolder_RefreshKeepsPreviousOnBadConfig(t *testing.T) {
	bad := domain.DefaultReviewPolicy()
	bad.ReviewSLAHours["CRITICAL"] = 100
	h := NewHolder(defaultSnapshot(t), &stubSource{cfg: bad}, zap.NewNop())
	before := h.Snapshot()

	err := h.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Same(t, before, h.Snapshot())
}

func TestHolder_RefreshSourceFailureIsBackendError(t *testing.T) {
	h := NewHolder(defaultSnapshot(t), &stubSource{err: errors.New("db down")}, zap.NewNop())

	err := h.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.True(t, domain.IsRetryable(err))
}

func TestHolder_ConcurrentReadsDuringSwap(t *testing.T) {
	strict := domain.DefaultReviewPolicy()
	strict.AutoApproveLowRisk = false
	loose := domain.DefaultReviewPolicy()

	h := NewHolder(MustSnapshot(loose), nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				snap := h.Snapshot()
				// Один снимок: согласованный ответ: отключенный автоапрув всегда требует ревью
				req := snap.Decide(domain.RiskLow, domain.ConfidenceVeryHigh, "x")
				if !snap.Config().AutoApproveLowRisk {
					assert.True(t, req.Required)
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		if j%2 == 0 {
			h.Store(MustSnapshot(strict))
		} else {
			h.Store(MustSnapshot(loose))
		}
	}
	wg.Wait()
}

func TestHolder_RefreshWithoutSource(t *testing.T) {
	h := NewHolder(defaultSnapshot(t), nil, zap.NewNop())
	assert.Error(t, h.Refresh(context.Background()))
	h.Store(nil)
	assert.NotNil(t, h.Snapshot())
}
