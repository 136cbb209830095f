package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/copilot-governance/internal/audit"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/infra/auth"
	"github.com/xela07ax/copilot-governance/internal/ledger"
	"github.com/xela07ax/copilot-governance/internal/metrics"
	"github.com/xela07ax/copilot-governance/internal/policy"
	"go.uber.org/zap"
)

// QuarantineChecker: домены, по которым все решения уходят человеку
type QuarantineChecker interface {
	IsQuarantined(domain string) bool
}

// DecisionNotifier получает зафиксированные решения (notify.Publisher)
type DecisionNotifier interface {
	ReviewFinalized(ctx context.Context, review domain.HumanReview, status domain.RequestStatus) error
}

// Deps: зависимости Governor. Quarantine, Notifier и Auditor необязательны.
type Deps struct {
	Ledger      *ledger.Ledger
	Policies    ledger.PolicyProvider
	Quarantine  QuarantineChecker
	Aggregator  *metrics.Aggregator
	Notifier    DecisionNotifier
	Auditor     audit.Auditor
	Reliability *ReliabilityWrapper
	Metrics     *Metrics
	Logger      *zap.Logger
}

// Governor: фасад для воркеров и ревьюеров: политика, журнал, метрики,
// аудит и нотификации в одном месте.
type Governor struct {
	ledger      *ledger.Ledger
	policies    ledger.PolicyProvider
	quarantine  QuarantineChecker
	aggregator  *metrics.Aggregator
	notifier    DecisionNotifier
	auditor     audit.Auditor
	reliability *ReliabilityWrapper
	metrics     *Metrics
	logger      *zap.Logger
}

func NewGovernor(d Deps) *Governor {
	g := &Governor{
		ledger:      d.Ledger,
		policies:    d.Policies,
		quarantine:  d.Quarantine,
		aggregator:  d.Aggregator,
		notifier:    d.Notifier,
		auditor:     d.Auditor,
		reliability: d.Reliability,
		metrics:     d.Metrics,
		logger:      d.Logger.Named("governor"),
	}
	if g.auditor == nil {
		g.auditor = audit.Nop{}
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(nil)
	}
	if g.reliability == nil {
		g.reliability = NewReliabilityWrapper(ReliabilityConfig{}, g.metrics)
	}
	return g
}

// Evaluation: итог Evaluate: решение политики и что с запросом сделали.
type Evaluation struct {
	Request     *domain.CopilotRequest    `json:"request"`
	Requirement domain.ReviewRequirement  `json:"requirement"`
	Pending     *domain.PendingReviewItem `json:"pending,omitempty"`
}

// Decide: решение политики с учетом карантина домена. Карантин только ужесточает.
func (g *Governor) Decide(ctx context.Context, risk domain.RiskLevel, confidence domain.ConfidenceLevel, domainTag string) domain.ReviewRequirement {
	req := g.policies.Snapshot().Decide(risk, confidence, domainTag)
	outcome := "auto_approved"

	if g.quarantine != nil && g.quarantine.IsQuarantined(domainTag) {
		outcome = "quarantined"
		if !req.Required {
			req.Required = true
			req.SuggestedReviewers = policy.ElevatedReviewers()
		}
		req.Reason = "domain " + domainTag + " is quarantined: " + req.Reason
	} else if req.EscalationRequired {
		outcome = "escalated"
	} else if req.Required {
		outcome = "review_required"
	}
	g.metrics.DecisionsTotal.WithLabelValues(string(risk), outcome).Inc()

	g.auditor.Log(audit.AuditEvent{
		ID:         uuid.NewString(),
		TraceID:    TraceID(ctx),
		Action:     audit.ActionPolicyDecision,
		Domain:     domainTag,
		Actor:      auth.Subject(ctx),
		RiskLevel:  string(risk),
		Confidence: string(confidence),
		Reason:     req.Reason,
		Payload:    map[string]any{"required": req.Required, "escalation_required": req.EscalationRequired},
		Timestamp:  time.Now().UTC(),
	})
	return req
}

func (g *Governor) CreateRequest(ctx context.Context, req *domain.CopilotRequest) (*domain.CopilotRequest, error) {
	created, err := g.ledger.CreateRequest(ctx, req)
	if err != nil {
		return nil, g.fail(err)
	}
	return created, nil
}

func (g *Governor) GetRequest(ctx context.Context, id string) (*domain.CopilotRequest, error) {
	req, err := g.ledger.GetRequest(ctx, id)
	if err != nil {
		return nil, g.fail(err)
	}
	return req, nil
}

func (g *Governor) Transition(ctx context.Context, id string, next domain.RequestStatus) (*domain.CopilotRequest, error) {
	start := time.Now()
	before, err := g.ledger.GetRequest(ctx, id)
	if err != nil {
		return nil, g.fail(err)
	}
	req, err := g.ledger.Transition(ctx, id, next)
	if err != nil {
		return nil, g.fail(err)
	}
	g.logStatus(ctx, audit.ActionStatusChanged, req, before.Status, start)
	return req, nil
}

// Evaluate: решение политики плюс его применение: AUTO_APPROVED или очередь ревью.
// Запрос в PENDING сначала переводится в PROCESSING.
func (g *Governor) Evaluate(ctx context.Context, id, summary string) (*Evaluation, error) {
	start := time.Now()
	req, err := g.ledger.GetRequest(ctx, id)
	if err != nil {
		return nil, g.fail(err)
	}
	if req.Status == domain.StatusPending {
		if req, err = g.ledger.Transition(ctx, id, domain.StatusProcessing); err != nil {
			return nil, g.fail(err)
		}
	}
	from := req.Status
	// Решение считаем и пишем в аудит, только если его можно применить
	if from != domain.StatusProcessing {
		return nil, g.fail(&domain.TransitionError{From: from, To: domain.StatusAwaitingReview})
	}

	requirement := g.Decide(ctx, req.RiskLevel, req.Confidence, req.Domain)
	ev := &Evaluation{Requirement: requirement}

	if !requirement.Required {
		if ev.Request, err = g.ledger.AutoApprove(ctx, id); err != nil {
			return nil, g.fail(err)
		}
		g.logStatus(ctx, audit.ActionAutoApproved, ev.Request, from, start)
		return ev, nil
	}

	item, err := g.ledger.RegisterPending(ctx, id, summary, requirement.SuggestedReviewers)
	if err != nil {
		return nil, g.fail(err)
	}
	req.Status = domain.StatusAwaitingReview
	ev.Request, ev.Pending = req, item
	g.logStatus(ctx, audit.ActionReviewRequested, req, from, start)
	return ev, nil
}

// RegisterPending: прямой путь для воркера, который сам вызвал Decide.
func (g *Governor) RegisterPending(ctx context.Context, id, summary string, reviewers []string) (*domain.PendingReviewItem, error) {
	item, err := g.ledger.RegisterPending(ctx, id, summary, reviewers)
	if err != nil {
		return nil, g.fail(err)
	}
	return item, nil
}

// SubmitReview фиксирует решение ревьюера. Аудит, метрики и нотификация идут
// после коммита и на результат не влияют.
func (g *Governor) SubmitReview(ctx context.Context, in ledger.SubmitReviewInput) (*domain.HumanReview, error) {
	start := time.Now()
	review, err := g.ledger.SubmitReview(ctx, in)
	if err != nil {
		return nil, g.fail(err)
	}
	status, _ := review.Decision.TargetStatus()

	if g.aggregator != nil {
		g.aggregator.Invalidate()
	}
	g.metrics.ReviewsTotal.WithLabelValues(string(review.Decision), boolLabel(review.MetSLA())).Inc()
	g.metrics.ReviewDuration.WithLabelValues(string(review.RiskLevel)).Observe(review.ReviewTimeSeconds)

	g.auditor.Log(audit.AuditEvent{
		ID:         uuid.NewString(),
		TraceID:    TraceID(ctx),
		Action:     audit.ActionReviewSubmitted,
		RequestID:  review.RequestID,
		Scope:      review.Scope,
		Actor:      review.ReviewerID,
		RiskLevel:  string(review.RiskLevel),
		FromStatus: string(domain.StatusAwaitingReview),
		ToStatus:   string(status),
		Decision:   string(review.Decision),
		Payload:    map[string]any{"review_id": review.ID, "met_sla": review.MetSLA(), "review_time_seconds": review.ReviewTimeSeconds},
		Timestamp:  review.ReviewedAt,
		DurationMs: time.Since(start).Milliseconds(),
	})

	if g.notifier != nil {
		nctx := context.WithoutCancel(ctx)
		err := g.reliability.Do(nctx, func(ctx context.Context) error {
			return g.notifier.ReviewFinalized(ctx, *review, status)
		})
		if err != nil {
			g.metrics.ErrorTotal.WithLabelValues(string(domain.CodeOf(err))).Inc()
			g.logger.Warn("review decision not published",
				zap.String("request_id", review.RequestID), zap.Error(err))
		}
	}
	return review, nil
}

func (g *Governor) GetReview(ctx context.Context, id string) (*domain.HumanReview, error) {
	r, err := g.ledger.GetReview(ctx, id)
	if err != nil {
		return nil, g.fail(err)
	}
	return r, nil
}

func (g *Governor) GetReviewHistory(ctx context.Context, requestID string) ([]domain.HumanReview, error) {
	rs, err := g.ledger.GetReviewHistory(ctx, requestID)
	if err != nil {
		return nil, g.fail(err)
	}
	return rs, nil
}

func (g *Governor) GetPendingReviews(ctx context.Context, scope string) ([]domain.PendingReviewItem, error) {
	items, err := g.ledger.GetPendingReviews(ctx, scope)
	if err != nil {
		return nil, g.fail(err)
	}
	return items, nil
}

func (g *Governor) GetOverdueReviews(ctx context.Context, scope string) ([]domain.PendingReviewItem, error) {
	items, err := g.ledger.GetOverdueReviews(ctx, scope, time.Now().UTC())
	if err != nil {
		return nil, g.fail(err)
	}
	return items, nil
}

func (g *Governor) ComputeMetrics(ctx context.Context, scope string, start, end time.Time) (domain.ReviewMetrics, error) {
	m, err := g.aggregator.Compute(ctx, scope, start, end)
	if err != nil {
		return domain.ReviewMetrics{}, g.fail(err)
	}
	return m, nil
}

func (g *Governor) logStatus(ctx context.Context, action string, req *domain.CopilotRequest, from domain.RequestStatus, start time.Time) {
	g.auditor.Log(audit.AuditEvent{
		ID:         uuid.NewString(),
		TraceID:    TraceID(ctx),
		Action:     action,
		RequestID:  req.ID,
		Scope:      req.Scope,
		Domain:     req.Domain,
		Actor:      auth.Subject(ctx),
		RiskLevel:  string(req.RiskLevel),
		Confidence: string(req.Confidence),
		FromStatus: string(from),
		ToStatus:   string(req.Status),
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// fail считает ошибку по коду домена и возвращает ее как есть
func (g *Governor) fail(err error) error {
	g.metrics.ErrorTotal.WithLabelValues(string(domain.CodeOf(err))).Inc()
	return err
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
