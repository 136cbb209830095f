package handler

import (
	"net/http"

	"github.com/xela07ax/copilot-governance/internal/audit"
	"github.com/xela07ax/copilot-governance/internal/console/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs возвращает список событий аудита с поддержкой фильтрации
// GET /v1/admin/audit?request_id=...&action=...&scope=...&limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	logs, err := h.service.FetchLogs(r.Context(), audit.Filter{
		RequestID: q.Get("request_id"),
		Action:    q.Get("action"),
		Scope:     q.Get("scope"),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
