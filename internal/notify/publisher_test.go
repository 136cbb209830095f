package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/infra"
	"go.uber.org/zap"
)

// fakeRedis перехватывает только Publish; остальные методы не нужны
type fakeRedis struct {
	redis.UniversalClient
	channel string
	payload any
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.payload = message
	return redis.NewIntResult(1, f.err)
}

func TestReviewFinalized_PublishesDecision(t *testing.T) {
	rdb := &fakeRedis{}
	p := NewPublisher(rdb, zap.NewNop())
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	err := p.ReviewFinalized(context.Background(), domain.HumanReview{
		ID:          "rev-1",
		RequestID:   "req-1",
		Scope:       "acme",
		ReviewerID:  "alice",
		Decision:    domain.DecisionModified,
		ReviewedAt:  at,
		SLADeadline: at.Add(time.Hour),
	}, domain.StatusApproved)
	require.NoError(t, err)

	assert.Equal(t, infra.RedisChanReviewDecisions, rdb.channel)
	var msg DecisionMessage
	require.NoError(t, json.Unmarshal(rdb.payload.([]byte), &msg))
	assert.Equal(t, "req-1", msg.RequestID)
	assert.Equal(t, domain.StatusApproved, msg.Status)
	assert.True(t, msg.MetSLA)
}

func TestPublishFailureIsBackendError(t *testing.T) {
	rdb := &fakeRedis{err: errors.New("connection refused")}
	p := NewPublisher(rdb, zap.NewNop())

	err := p.PolicyUpdated(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.Equal(t, infra.RedisChanPolicyUpdate, rdb.channel)
	assert.Equal(t, "refresh", rdb.payload)
}
