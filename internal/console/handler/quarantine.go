package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/copilot-governance/internal/console/service"
	"github.com/xela07ax/copilot-governance/internal/infra/auth"
)

type QuarantineHandler struct {
	service *service.QuarantineService
}

func NewQuarantineHandler(s *service.QuarantineService) *QuarantineHandler {
	return &QuarantineHandler{service: s}
}

// GET /v1/admin/quarantine
func (h *QuarantineHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"domains": h.service.List()})
}

// Add: все решения по домену уходят человеку.
// POST /v1/admin/quarantine/{domain}
func (h *QuarantineHandler) Add(w http.ResponseWriter, r *http.Request) {
	h.set(w, r, true)
}

// DELETE /v1/admin/quarantine/{domain}
func (h *QuarantineHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.set(w, r, false)
}

func (h *QuarantineHandler) set(w http.ResponseWriter, r *http.Request, on bool) {
	if err := h.service.Set(r.Context(), chi.URLParam(r, "domain"), on, auth.Subject(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
