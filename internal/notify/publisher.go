// Package notify рассылает события governance через Redis Pub/Sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/infra"
	"go.uber.org/zap"
)

// DecisionMessage: то, что получают подписчики канала решений (воркеры, UI очереди).
type DecisionMessage struct {
	RequestID  string               `json:"request_id"`
	ReviewID   string               `json:"review_id"`
	Scope      string               `json:"scope"`
	ReviewerID string               `json:"reviewer_id"`
	Decision   domain.Decision      `json:"decision"`
	Status     domain.RequestStatus `json:"status"`
	ReviewedAt time.Time            `json:"reviewed_at"`
	MetSLA     bool                 `json:"met_sla"`
}

type Publisher struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
}

func NewPublisher(rdb redis.UniversalClient, logger *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger.Named("notify")}
}

// ReviewFinalized публикует зафиксированное решение. Вызывается после коммита,
// поэтому ошибка здесь не откатывает ревью.
func (p *Publisher) ReviewFinalized(ctx context.Context, review domain.HumanReview, status domain.RequestStatus) error {
	payload, err := json.Marshal(DecisionMessage{
		RequestID:  review.RequestID,
		ReviewID:   review.ID,
		Scope:      review.Scope,
		ReviewerID: review.ReviewerID,
		Decision:   review.Decision,
		Status:     status,
		ReviewedAt: review.ReviewedAt,
		MetSLA:     review.MetSLA(),
	})
	if err != nil {
		return fmt.Errorf("encode decision message: %w", err)
	}

	if err := p.rdb.Publish(ctx, infra.RedisChanReviewDecisions, payload).Err(); err != nil {
		return domain.Backend("publish review decision", err)
	}
	p.logger.Debug("review decision published", zap.String("request_id", review.RequestID))
	return nil
}

// PolicyUpdated просит все инстансы перечитать политику из базы
func (p *Publisher) PolicyUpdated(ctx context.Context) error {
	if err := p.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, "refresh").Err(); err != nil {
		return domain.Backend("publish policy update", err)
	}
	return nil
}
