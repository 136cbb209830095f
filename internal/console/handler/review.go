package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/infra/auth"
	"github.com/xela07ax/copilot-governance/internal/ledger"
)

// ReviewGovernor: то, что нужно ревьюерам от engine.Governor
type ReviewGovernor interface {
	GetPendingReviews(ctx context.Context, scope string) ([]domain.PendingReviewItem, error)
	GetOverdueReviews(ctx context.Context, scope string) ([]domain.PendingReviewItem, error)
	GetReview(ctx context.Context, id string) (*domain.HumanReview, error)
	GetReviewHistory(ctx context.Context, requestID string) ([]domain.HumanReview, error)
	SubmitReview(ctx context.Context, in ledger.SubmitReviewInput) (*domain.HumanReview, error)
	ComputeMetrics(ctx context.Context, scope string, start, end time.Time) (domain.ReviewMetrics, error)
}

// DefaultMetricsWindow: окно метрик, если start/end не заданы
const DefaultMetricsWindow = 24 * time.Hour

type ReviewHandler struct {
	gov ReviewGovernor
	now func() time.Time
}

func NewReviewHandler(g ReviewGovernor) *ReviewHandler {
	return &ReviewHandler{gov: g, now: time.Now}
}

// Pending: очередь, старые первыми.
// GET /v1/reviews/pending?scope=...
func (h *ReviewHandler) Pending(w http.ResponseWriter, r *http.Request) {
	items, err := h.gov.GetPendingReviews(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GET /v1/reviews/overdue?scope=...
func (h *ReviewHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	items, err := h.gov.GetOverdueReviews(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GET /v1/reviews/{id}
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	review, err := h.gov.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// History: все ревью запроса (пустой список, если их нет).
// GET /v1/requests/{id}/reviews
func (h *ReviewHandler) History(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.gov.GetReviewHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

type submitReviewBody struct {
	Decision        string          `json:"decision"`
	Modifications   json.RawMessage `json:"modifications,omitempty"`
	Feedback        *string         `json:"feedback,omitempty"`
	QualityRating   *int            `json:"quality_rating,omitempty"`
	ReviewStartedAt time.Time       `json:"review_started_at"`
}

// Submit: решение ревьюера; reviewer_id берется из токена.
// POST /v1/requests/{id}/reviews
func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body submitReviewBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	decision, err := domain.ParseDecision(body.Decision)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.ReviewStartedAt.IsZero() {
		writeError(w, domain.Validation("review_started_at is required"))
		return
	}

	review, err := h.gov.SubmitReview(r.Context(), ledger.SubmitReviewInput{
		RequestID:       chi.URLParam(r, "id"),
		ReviewerID:      auth.Subject(r.Context()),
		Decision:        decision,
		Modifications:   body.Modifications,
		Feedback:        body.Feedback,
		QualityRating:   body.QualityRating,
		ReviewStartedAt: body.ReviewStartedAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// Metrics: сводка за окно [start, end] (RFC3339).
// GET /v1/metrics?scope=...&start=...&end=...
func (h *ReviewHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	end := h.now().UTC()
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, domain.Validation("end must be RFC3339"))
			return
		}
		end = t
	}
	start := end.Add(-DefaultMetricsWindow)
	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, domain.Validation("start must be RFC3339"))
			return
		}
		start = t
	}

	m, err := h.gov.ComputeMetrics(r.Context(), q.Get("scope"), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
