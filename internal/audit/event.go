package audit

import "time"

// Действия, которые попадают в журнал
const (
	ActionPolicyDecision   = "policy_decision"
	ActionAutoApproved     = "auto_approved"
	ActionReviewRequested  = "review_requested"
	ActionReviewSubmitted  = "review_submitted"
	ActionStatusChanged    = "status_changed"
	ActionPolicyUpdated    = "policy_updated"
	ActionDomainQuarantine = "domain_quarantine"
)

type AuditEvent struct {
	ID        string `json:"id"`       // UUID события
	TraceID   string `json:"trace_id"` // Сквозной ID HTTP-запроса
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Actor     string `json:"actor"` // subject из JWT или "system"

	// Контекст решения
	RiskLevel  string `json:"risk_level,omitempty"`
	Confidence string `json:"confidence_level,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Decision   string `json:"decision,omitempty"`
	Reason     string `json:"reason,omitempty"`

	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// Filter: выборка журнала для консоли; пустые поля не фильтруют
type Filter struct {
	RequestID string
	Action    string
	Scope     string
	Limit     int
}

// DefaultFetchLimit: сколько событий отдаем без явного limit
const DefaultFetchLimit = 100

// EffectiveLimit: limit после нормализации
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return DefaultFetchLimit
	}
	return f.Limit
}

func (f Filter) Match(e AuditEvent) bool {
	return (f.RequestID == "" || e.RequestID == f.RequestID) &&
		(f.Action == "" || e.Action == f.Action) &&
		(f.Scope == "" || e.Scope == f.Scope)
}
