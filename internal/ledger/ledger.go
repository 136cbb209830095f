package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/policy"
	"go.uber.org/zap"
)

// PolicyProvider отдает текущий снимок политики (policy.Holder).
type PolicyProvider interface {
	Snapshot() *policy.Snapshot
}

// Ledger: журнал ревью: единственная точка, через которую запрос
// проходит свой жизненный цикл и получает человеческое решение.
type Ledger struct {
	requests StatusStore
	storage  Storage
	policies PolicyProvider
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Ledger)

// WithClock подменяет часы (тесты, воспроизводимые дедлайны)
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(requests StatusStore, storage Storage, policies PolicyProvider, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		requests: requests,
		storage:  storage,
		policies: policies,
		logger:   logger.Named("ledger"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateRequest регистрирует новый запрос в статусе PENDING.
func (l *Ledger) CreateRequest(ctx context.Context, req *domain.CopilotRequest) (*domain.CopilotRequest, error) {
	if req == nil {
		return nil, domain.Validation("request is required")
	}
	r := *req
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := l.now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	r.Status = domain.StatusPending
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := l.requests.CreateRequest(ctx, &r); err != nil {
		return nil, domain.Backend("create request", err)
	}
	l.logger.Debug("request created",
		zap.String("request_id", r.ID),
		zap.String("scope", r.Scope),
		zap.String("risk", string(r.RiskLevel)))
	return &r, nil
}

func (l *Ledger) GetRequest(ctx context.Context, id string) (*domain.CopilotRequest, error) {
	if id == "" {
		return nil, domain.Validation("request id is required")
	}
	req, err := l.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, domain.Backend("get request", err)
	}
	return req, nil
}

// Transition: операционные переходы (PROCESSING, CANCELLED, FAILED и т.п.).
// Финальные APPROVED/REJECTED достижимы только через SubmitReview.
func (l *Ledger) Transition(ctx context.Context, id string, next domain.RequestStatus) (*domain.CopilotRequest, error) {
	if !next.Valid() {
		return nil, domain.Validation(fmt.Sprintf("unknown status %q", next))
	}
	req, err := l.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if next.FinalizedByReview() {
		return nil, &domain.TransitionError{From: req.Status, To: next}
	}
	// AWAITING_REVIEW только через RegisterPending: иначе не будет проекции в очереди
	if next == domain.StatusAwaitingReview {
		return nil, domain.Validation("use evaluate to send a request to review")
	}
	if err := domain.CanTransition(req.Status, next); err != nil {
		return nil, err
	}

	now := l.now().UTC()
	if err := l.swap(ctx, id, req.Status, next, now); err != nil {
		return nil, err
	}

	if req.Status == domain.StatusAwaitingReview {
		// Отмена ожидающего запроса: убираем его из очереди
		if err := l.storage.RemovePending(ctx, id); err != nil {
			l.compensate(ctx, id, next, req.Status)
			return nil, domain.Backend("remove pending review", err)
		}
	}

	l.logger.Info("request status changed",
		zap.String("request_id", id),
		zap.String("from", string(req.Status)),
		zap.String("to", string(next)))

	req.Status = next
	req.UpdatedAt = now
	return req, nil
}

// AutoApprove: фиксирует решение политики, не требующее человека.
func (l *Ledger) AutoApprove(ctx context.Context, id string) (*domain.CopilotRequest, error) {
	req, err := l.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CanTransition(req.Status, domain.StatusAutoApproved); err != nil {
		return nil, err
	}
	now := l.now().UTC()
	if err := l.swap(ctx, id, req.Status, domain.StatusAutoApproved, now); err != nil {
		return nil, err
	}
	req.Status = domain.StatusAutoApproved
	req.UpdatedAt = now
	return req, nil
}

// RegisterPending переводит запрос в AWAITING_REVIEW и ставит его в очередь
// с дедлайном по текущей политике.
func (l *Ledger) RegisterPending(ctx context.Context, id, summary string, reviewers []string) (*domain.PendingReviewItem, error) {
	req, err := l.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CanTransition(req.Status, domain.StatusAwaitingReview); err != nil {
		return nil, err
	}

	item := domain.PendingReviewItem{
		RequestID:          req.ID,
		Scope:              req.Scope,
		Domain:             req.Domain,
		RiskLevel:          req.RiskLevel,
		Confidence:         req.Confidence,
		CreatedAt:          req.CreatedAt,
		Deadline:           l.policies.Snapshot().Deadline(req.RiskLevel, req.CreatedAt),
		OutputSummary:      summary,
		SuggestedReviewers: append([]string(nil), reviewers...),
	}

	if err := l.enqueue(ctx, item, req.Status); err != nil {
		return nil, err
	}

	l.logger.Info("request awaiting review",
		zap.String("request_id", id),
		zap.String("risk", string(req.RiskLevel)),
		zap.Time("deadline", item.Deadline))
	return &item, nil
}

// enqueue ставит запрос в очередь. Элемент очереди появляется раньше
// статуса AWAITING_REVIEW: ревьюер, пришедший в этот зазор, получает
// InvalidTransition, а pending не переживает финализацию запроса.
func (l *Ledger) enqueue(ctx context.Context, item domain.PendingReviewItem, from domain.RequestStatus) error {
	now := l.now().UTC()
	if e, ok := l.storage.(Enqueuer); ok {
		won, err := e.EnqueueReview(ctx, item, from, now)
		if err != nil {
			return domain.Backend("enqueue review", err)
		}
		if !won {
			return l.conflictAfterRace(ctx, item.RequestID, domain.StatusAwaitingReview)
		}
		return nil
	}

	if err := l.storage.SavePending(ctx, item); err != nil {
		return domain.Backend("save pending review", err)
	}
	if err := l.swap(ctx, item.RequestID, from, domain.StatusAwaitingReview, now); err != nil {
		l.dropPending(ctx, item.RequestID)
		return err
	}
	return nil
}

// dropPending убирает элемент очереди после неудачного CAS. Если запрос
// все же в AWAITING_REVIEW, его поставил в очередь конкурент: не трогаем.
func (l *Ledger) dropPending(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	if current, err := l.requests.GetRequest(ctx, id); err == nil && current.Status == domain.StatusAwaitingReview {
		return
	}
	if err := l.storage.RemovePending(ctx, id); err != nil {
		l.logger.Error("stale pending review left in queue, manual repair needed",
			zap.String("request_id", id),
			zap.Error(err))
	}
}

// SubmitReviewInput: решение ревьюера до фиксации.
type SubmitReviewInput struct {
	RequestID       string
	ReviewerID      string
	Decision        domain.Decision
	Modifications   json.RawMessage
	Feedback        *string
	QualityRating   *int
	ReviewStartedAt time.Time
}

func (in SubmitReviewInput) validate() error {
	switch {
	case in.RequestID == "":
		return domain.Validation("request_id is required")
	case in.ReviewerID == "":
		return domain.Validation("reviewer_id is required")
	case !in.Decision.Valid():
		return domain.Validation(fmt.Sprintf("unknown review decision %q", in.Decision))
	case in.ReviewStartedAt.IsZero():
		return domain.Validation("review_started_at is required")
	}
	if in.QualityRating != nil && (*in.QualityRating < 1 || *in.QualityRating > 5) {
		return domain.Validation(fmt.Sprintf("quality_rating must be within 1..5, got %d", *in.QualityRating))
	}

	hasMods := len(bytes.TrimSpace(in.Modifications)) > 0
	switch {
	case in.Decision == domain.DecisionModified && !hasMods:
		return domain.Validation("modified decision requires modifications")
	case in.Decision != domain.DecisionModified && hasMods:
		return domain.Validation("modifications are only accepted with the modified decision")
	case hasMods:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(in.Modifications, &obj); err != nil {
			return domain.Validation("modifications must be a JSON object")
		}
	}
	return nil
}

// SubmitReview фиксирует решение ревьюера. Среди конкурирующих решений
// по одному запросу побеждает ровно одно, остальные получают
// ReviewAlreadyFinalized без побочных эффектов.
func (l *Ledger) SubmitReview(ctx context.Context, in SubmitReviewInput) (*domain.HumanReview, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := l.now().UTC()
	elapsed := now.Sub(in.ReviewStartedAt).Seconds()
	if elapsed < 0 {
		return nil, domain.Validation("review_started_at is in the future")
	}
	target, err := in.Decision.TargetStatus()
	if err != nil {
		return nil, err
	}

	req, err := l.GetRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusAwaitingReview {
		return nil, conflict(req.ID, req.Status, target)
	}

	deadline, err := l.deadlineFor(ctx, req)
	if err != nil {
		return nil, err
	}

	review := &domain.HumanReview{
		ID:                uuid.NewString(),
		RequestID:         req.ID,
		Scope:             req.Scope,
		ReviewerID:        in.ReviewerID,
		Decision:          in.Decision,
		Modifications:     in.Modifications,
		Feedback:          in.Feedback,
		QualityRating:     in.QualityRating,
		ReviewTimeSeconds: elapsed,
		ReviewedAt:        now,
		RiskLevel:         req.RiskLevel,
		SLADeadline:       deadline,
	}

	if f, ok := l.storage.(Finalizer); ok {
		won, err := f.FinalizeReview(ctx, review, domain.StatusAwaitingReview, target)
		if err != nil {
			return nil, domain.Backend("finalize review", err)
		}
		if !won {
			return nil, l.conflictAfterRace(ctx, req.ID, target)
		}
	} else {
		won, err := l.requests.CompareAndSwapStatus(ctx, req.ID, domain.StatusAwaitingReview, target, now)
		if err != nil {
			return nil, domain.Backend("finalize request status", err)
		}
		if !won {
			return nil, l.conflictAfterRace(ctx, req.ID, target)
		}
		if err := l.storage.SaveReview(ctx, review); err != nil {
			// Статус уже финальный, а ревью нет: возвращаем запрос в очередь.
			// Откат идет в обход автомата состояний.
			l.compensate(ctx, req.ID, target, domain.StatusAwaitingReview)
			return nil, domain.Backend("save review", err)
		}
	}

	l.logger.Info("review submitted",
		zap.String("review_id", review.ID),
		zap.String("request_id", review.RequestID),
		zap.String("reviewer", review.ReviewerID),
		zap.String("decision", string(review.Decision)),
		zap.Bool("met_sla", review.MetSLA()))
	return review, nil
}

// deadlineFor берет дедлайн, зафиксированный при постановке в очередь:
// смена политики не должна переписывать обещанный SLA.
func (l *Ledger) deadlineFor(ctx context.Context, req *domain.CopilotRequest) (time.Time, error) {
	item, err := l.storage.GetPending(ctx, req.ID)
	if err != nil {
		return time.Time{}, domain.Backend("get pending review", err)
	}
	if item != nil && !item.Deadline.IsZero() {
		return item.Deadline, nil
	}
	return l.policies.Snapshot().Deadline(req.RiskLevel, req.CreatedAt), nil
}

func (l *Ledger) GetReview(ctx context.Context, id string) (*domain.HumanReview, error) {
	if id == "" {
		return nil, domain.Validation("review id is required")
	}
	r, err := l.storage.GetReview(ctx, id)
	if err != nil {
		return nil, domain.Backend("get review", err)
	}
	return r, nil
}

// GetReviewHistory: все ревью запроса в порядке фиксации.
func (l *Ledger) GetReviewHistory(ctx context.Context, requestID string) ([]domain.HumanReview, error) {
	if requestID == "" {
		return nil, domain.Validation("request id is required")
	}
	reviews, err := l.storage.GetReviewsForRequest(ctx, requestID)
	if err != nil {
		return nil, domain.Backend("get review history", err)
	}
	if reviews == nil {
		reviews = []domain.HumanReview{}
	}
	return reviews, nil
}

func (l *Ledger) GetPendingReviews(ctx context.Context, scope string) ([]domain.PendingReviewItem, error) {
	items, err := l.storage.GetPendingReviews(ctx, scope)
	if err != nil {
		return nil, domain.Backend("get pending reviews", err)
	}
	if items == nil {
		items = []domain.PendingReviewItem{}
	}
	return items, nil
}

// GetOverdueReviews: ожидающие ревью, чей SLA истек на момент now.
func (l *Ledger) GetOverdueReviews(ctx context.Context, scope string, now time.Time) ([]domain.PendingReviewItem, error) {
	items, err := l.GetPendingReviews(ctx, scope)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = l.now()
	}
	return l.policies.Snapshot().OverdueItems(items, now), nil
}

func (l *Ledger) swap(ctx context.Context, id string, from, to domain.RequestStatus, at time.Time) error {
	ok, err := l.requests.CompareAndSwapStatus(ctx, id, from, to, at)
	if err != nil {
		return domain.Backend("update request status", err)
	}
	if !ok {
		return l.conflictAfterRace(ctx, id, to)
	}
	return nil
}

// conflictAfterRace перечитывает статус после проигранного CAS
func (l *Ledger) conflictAfterRace(ctx context.Context, id string, target domain.RequestStatus) error {
	current, err := l.requests.GetRequest(ctx, id)
	if err != nil {
		return domain.Backend("reload request status", err)
	}
	return conflict(id, current.Status, target)
}

func conflict(id string, current, target domain.RequestStatus) error {
	if current.FinalizedByReview() && target.FinalizedByReview() {
		return domain.ReviewAlreadyFinalized(id)
	}
	return &domain.TransitionError{From: current, To: target}
}

func (l *Ledger) compensate(ctx context.Context, id string, from, to domain.RequestStatus) {
	ok, err := l.requests.CompareAndSwapStatus(context.WithoutCancel(ctx), id, from, to, l.now().UTC())
	if err != nil || !ok {
		l.logger.Error("status compensation failed, manual repair needed",
			zap.String("request_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Bool("swapped", ok),
			zap.Error(err))
		return
	}
	l.logger.Warn("status rolled back after storage failure",
		zap.String("request_id", id),
		zap.String("to", string(to)))
}
