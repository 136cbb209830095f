package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/engine"
)

// WorkerGovernor: то, что нужно воркерам от engine.Governor
type WorkerGovernor interface {
	Decide(ctx context.Context, risk domain.RiskLevel, confidence domain.ConfidenceLevel, domainTag string) domain.ReviewRequirement
	CreateRequest(ctx context.Context, req *domain.CopilotRequest) (*domain.CopilotRequest, error)
	GetRequest(ctx context.Context, id string) (*domain.CopilotRequest, error)
	Transition(ctx context.Context, id string, next domain.RequestStatus) (*domain.CopilotRequest, error)
	Evaluate(ctx context.Context, id, summary string) (*engine.Evaluation, error)
}

type WorkerHandler struct {
	gov WorkerGovernor
}

func NewWorkerHandler(g WorkerGovernor) *WorkerHandler {
	return &WorkerHandler{gov: g}
}

// assessment: риск и уверенность, как их прислал воркер.
// Уверенность: уровнем или числом в [0,1].
type assessment struct {
	RiskLevel       string   `json:"risk_level"`
	ConfidenceLevel string   `json:"confidence_level,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	Domain          string   `json:"domain"`
}

func (a assessment) parse() (domain.RiskLevel, domain.ConfidenceLevel, error) {
	risk, err := domain.ParseRiskLevel(a.RiskLevel)
	if err != nil {
		return "", "", err
	}
	var conf domain.ConfidenceLevel
	switch {
	case a.ConfidenceScore != nil:
		conf, err = domain.ConfidenceFromScore(*a.ConfidenceScore)
	default:
		conf, err = domain.ParseConfidenceLevel(a.ConfidenceLevel)
	}
	if err != nil {
		return "", "", err
	}
	return risk, conf, nil
}

// Decide: решение политики без записи в журнал.
// POST /v1/decide
func (h *WorkerHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var body assessment
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	risk, conf, err := body.parse()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.gov.Decide(r.Context(), risk, conf, body.Domain))
}

type createRequestBody struct {
	ID    string `json:"id,omitempty"`
	Scope string `json:"scope"`
	assessment
}

// CreateRequest
// POST /v1/requests
func (h *WorkerHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	risk, conf, err := body.parse()
	if err != nil {
		writeError(w, err)
		return
	}

	req, err := h.gov.CreateRequest(r.Context(), &domain.CopilotRequest{
		ID:         body.ID,
		Scope:      body.Scope,
		Domain:     body.Domain,
		RiskLevel:  risk,
		Confidence: conf,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GET /v1/requests/{id}
func (h *WorkerHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.gov.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Transition: PROCESSING, CANCELLED, FAILED.
// POST /v1/requests/{id}/status
func (h *WorkerHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	next, err := domain.ParseRequestStatus(body.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	req, err := h.gov.Transition(r.Context(), chi.URLParam(r, "id"), next)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Evaluate: решение политики и его применение к запросу.
// POST /v1/requests/{id}/evaluate
func (h *WorkerHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OutputSummary string `json:"output_summary"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	ev, err := h.gov.Evaluate(r.Context(), chi.URLParam(r, "id"), body.OutputSummary)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
