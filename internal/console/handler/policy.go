package handler

import (
	"net/http"

	"github.com/xela07ax/copilot-governance/internal/console/service"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/infra/auth"
)

type PolicyHandler struct {
	service *service.PolicyService
}

func NewPolicyHandler(s *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{service: s}
}

// Get возвращает действующую политику ревью.
// GET /v1/admin/policy
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Current())
}

// Update заменяет политику целиком; невалидная отклоняется с 422.
// PUT /v1/admin/policy
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ReviewPolicyConfig
	if err := decode(r, &cfg); err != nil {
		writeError(w, err)
		return
	}

	applied, err := h.service.Update(r.Context(), cfg, auth.Subject(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

// Reload перечитывает политику из базы.
// POST /v1/admin/policy/reload
func (h *PolicyHandler) Reload(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Reload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
