package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/copilot-governance/internal/audit"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/ledger"
	"github.com/xela07ax/copilot-governance/internal/metrics"
	"github.com/xela07ax/copilot-governance/internal/policy"
	"go.uber.org/zap"
)

type quarantineSet map[string]bool

func (q quarantineSet) IsQuarantined(d string) bool { return q[d] }

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []domain.RequestStatus
	err      error
	calls    int
}

func (n *recordingNotifier) ReviewFinalized(_ context.Context, _ domain.HumanReview, status domain.RequestStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.err != nil {
		return n.err
	}
	n.statuses = append(n.statuses, status)
	return nil
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.AuditEvent
}

func (a *recordingAuditor) Log(e audit.AuditEvent) {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

type govFixture struct {
	gov      *Governor
	notifier *recordingNotifier
	auditor  *recordingAuditor
	metrics  *Metrics
}

func newGovernor(t *testing.T, quarantined ...string) *govFixture {
	t.Helper()
	store := ledger.NewInMemoryStore()
	holder := policy.NewHolder(policy.MustSnapshot(domain.DefaultReviewPolicy()), nil, zap.NewNop())
	agg, err := metrics.NewAggregator(store, metrics.CacheConfig{TTL: time.Minute}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(agg.Close)

	q := quarantineSet{}
	for _, d := range quarantined {
		q[d] = true
	}
	m := NewMetrics(nil)
	f := &govFixture{notifier: &recordingNotifier{}, auditor: &recordingAuditor{}, metrics: m}
	f.gov = NewGovernor(Deps{
		Ledger:      ledger.New(store, store, holder, zap.NewNop()),
		Policies:    holder,
		Quarantine:  q,
		Aggregator:  agg,
		Notifier:    f.notifier,
		Auditor:     f.auditor,
		Reliability: NewReliabilityWrapper(ReliabilityConfig{Attempts: 2, RetryDelay: time.Millisecond}, m),
		Metrics:     m,
		Logger:      zap.NewNop(),
	})
	return f
}

func (f *govFixture) create(t *testing.T, domainTag string, risk domain.RiskLevel, conf domain.ConfidenceLevel) *domain.CopilotRequest {
	t.Helper()
	req, err := f.gov.CreateRequest(context.Background(), &domain.CopilotRequest{
		Scope:      "acme",
		Domain:     domainTag,
		RiskLevel:  risk,
		Confidence: conf,
	})
	require.NoError(t, err)
	return req
}

func TestEvaluate_LowRiskHighConfidenceAutoApproves(t *testing.T) {
	f := newGovernor(t)
	req := f.create(t, "email_drafting", domain.RiskLow, domain.ConfidenceVeryHigh)

	ev, err := f.gov.Evaluate(context.Background(), req.ID, "draft")
	require.NoError(t, err)
	assert.False(t, ev.Requirement.Required)
	assert.Nil(t, ev.Pending)
	assert.Equal(t, domain.StatusAutoApproved, ev.Request.Status)

	pending, err := f.gov.GetPendingReviews(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Contains(t, f.auditor.actions(), audit.ActionAutoApproved)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DecisionsTotal.WithLabelValues("LOW", "auto_approved")))
}

func TestEvaluate_MediumRiskGoesToQueue(t *testing.T) {
	f := newGovernor(t)
	req := f.create(t, "maintenance_triage", domain.RiskMedium, domain.ConfidenceMedium)

	ev, err := f.gov.Evaluate(context.Background(), req.ID, "replace pump seal")
	require.NoError(t, err)
	assert.True(t, ev.Requirement.Required)
	require.NotNil(t, ev.Pending)
	assert.Equal(t, domain.StatusAwaitingReview, ev.Request.Status)
	assert.Equal(t, []string{"team_lead", "domain_expert"}, ev.Pending.SuggestedReviewers)
	assert.Equal(t, req.CreatedAt.Add(24*time.Hour), ev.Pending.Deadline)

	pending, err := f.gov.GetPendingReviews(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].RequestID)
}

func TestEvaluate_CriticalIsEscalated(t *testing.T) {
	f := newGovernor(t)
	req := f.create(t, "credit_limit", domain.RiskCritical, domain.ConfidenceVeryHigh)

	ev, err := f.gov.Evaluate(context.Background(), req.ID, "raise limit")
	require.NoError(t, err)
	assert.True(t, ev.Requirement.EscalationRequired)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DecisionsTotal.WithLabelValues("CRITICAL", "escalated")))
}

func TestDecide_QuarantineForcesReview(t *testing.T) {
	f := newGovernor(t, "email_drafting")
	ctx := context.Background()

	req := f.gov.Decide(ctx, domain.RiskLow, domain.ConfidenceVeryHigh, "email_drafting")
	assert.True(t, req.Required)
	assert.Equal(t, policy.ElevatedReviewers(), req.SuggestedReviewers)
	assert.Contains(t, req.Reason, "quarantined")

	free := f.gov.Decide(ctx, domain.RiskLow, domain.ConfidenceVeryHigh, "other")
	assert.False(t, free.Required)
}

func TestSubmitReview_NotifiesAndInvalidatesMetrics(t *testing.T) {
	f := newGovernor(t)
	ctx := context.Background()
	req := f.create(t, "maintenance_triage", domain.RiskHigh, domain.ConfidenceHigh)
	_, err := f.gov.Evaluate(ctx, req.ID, "summary")
	require.NoError(t, err)

	from, to := time.Now().Add(-time.Hour), time.Now().Add(time.Hour)
	before, err := f.gov.ComputeMetrics(ctx, "acme", from, to)
	require.NoError(t, err)
	assert.Zero(t, before.TotalReviews)

	review, err := f.gov.SubmitReview(ctx, ledger.SubmitReviewInput{
		RequestID:       req.ID,
		ReviewerID:      "alice",
		Decision:        domain.DecisionRejected,
		ReviewStartedAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, review.RiskLevel)
	assert.Equal(t, []domain.RequestStatus{domain.StatusRejected}, f.notifier.statuses)

	after, err := f.gov.ComputeMetrics(ctx, "acme", from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.TotalReviews)
	assert.Equal(t, 1.0, after.RejectionRate)

	got, err := f.gov.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, got.Status)
	assert.Contains(t, f.auditor.actions(), audit.ActionReviewSubmitted)
}

func TestSubmitReview_NotifierFailureKeepsReview(t *testing.T) {
	f := newGovernor(t)
	f.notifier.err = domain.Backend("publish review decision", errors.New("redis down"))
	ctx := context.Background()
	req := f.create(t, "maintenance_triage", domain.RiskHigh, domain.ConfidenceHigh)
	_, err := f.gov.Evaluate(ctx, req.ID, "summary")
	require.NoError(t, err)

	review, err := f.gov.SubmitReview(ctx, ledger.SubmitReviewInput{
		RequestID:       req.ID,
		ReviewerID:      "bob",
		Decision:        domain.DecisionApproved,
		ReviewStartedAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, f.notifier.calls, "backend errors are retried")

	history, err := f.gov.GetReviewHistory(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, review.ID, history[0].ID)
}

func TestGovernor_CountsErrorsByCode(t *testing.T) {
	f := newGovernor(t)
	ctx := context.Background()

	_, err := f.gov.Evaluate(ctx, "missing", "x")
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)

	req := f.create(t, "maintenance_triage", domain.RiskHigh, domain.ConfidenceHigh)
	_, err = f.gov.Transition(ctx, req.ID, domain.StatusApproved)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ErrorTotal.WithLabelValues(string(domain.CodeRequestNotFound))))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ErrorTotal.WithLabelValues(string(domain.CodeInvalidTransition))))
}

func TestTransition_CancelAwaitingRequest(t *testing.T) {
	f := newGovernor(t)
	ctx := context.Background()
	req := f.create(t, "maintenance_triage", domain.RiskHigh, domain.ConfidenceHigh)
	_, err := f.gov.Evaluate(ctx, req.ID, "summary")
	require.NoError(t, err)

	got, err := f.gov.Transition(ctx, req.ID, domain.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)

	pending, err := f.gov.GetPendingReviews(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
	overdue, err := f.gov.GetOverdueReviews(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestEvaluate_AlreadyAppliedRequestRecordsNoDecision(t *testing.T) {
	f := newGovernor(t)
	ctx := context.Background()
	req := f.create(t, "maintenance_triage", domain.RiskHigh, domain.ConfidenceHigh)
	_, err := f.gov.Evaluate(ctx, req.ID, "summary")
	require.NoError(t, err)

	countDecisions := func() int {
		n := 0
		for _, a := range f.auditor.actions() {
			if a == audit.ActionPolicyDecision {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, countDecisions())

	// Повтор по запросу в очереди
	_, err = f.gov.Evaluate(ctx, req.ID, "summary")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// И по отмененному
	_, err = f.gov.Transition(ctx, req.ID, domain.StatusCancelled)
	require.NoError(t, err)
	_, err = f.gov.Evaluate(ctx, req.ID, "summary")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.Equal(t, 1, countDecisions())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DecisionsTotal.WithLabelValues("HIGH", "review_required")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ErrorTotal.WithLabelValues(string(domain.CodeInvalidTransition))))
}
