package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Decision: решение ревьюера.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	// DecisionModified: вариант approve со структурными правками вывода
	DecisionModified Decision = "modified"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionModified:
		return true
	default:
		return false
	}
}

// TargetStatus: в какой статус решение переводит запрос.
func (d Decision) TargetStatus() (RequestStatus, error) {
	switch d {
	case DecisionApproved, DecisionModified:
		return StatusApproved, nil
	case DecisionRejected:
		return StatusRejected, nil
	default:
		return "", Validation(fmt.Sprintf("unknown review decision %q", d))
	}
}

func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", Validation(fmt.Sprintf("unknown review decision %q", s))
	}
	return d, nil
}

// HumanReview: решение одного ревьюера по одному запросу. Неизменяемо после создания.
type HumanReview struct {
	ID         string   `json:"id"`
	RequestID  string   `json:"request_id"` // Ссылка, не владение
	Scope      string   `json:"scope"`
	ReviewerID string   `json:"reviewer_id"`
	Decision   Decision `json:"decision"`

	Modifications json.RawMessage `json:"modifications,omitempty"`
	Feedback      *string         `json:"feedback,omitempty"`
	QualityRating *int            `json:"quality_rating,omitempty"` // 1..5

	ReviewTimeSeconds float64   `json:"review_time_seconds"`
	ReviewedAt        time.Time `json:"reviewed_at"`

	// Денормализация на момент фиксации: нужна для метрик SLA без join-ов
	RiskLevel   RiskLevel `json:"risk_level"`
	SLADeadline time.Time `json:"sla_deadline"`
}

// MetSLA: решение принято не позже дедлайна.
func (r *HumanReview) MetSLA() bool {
	return !r.ReviewedAt.After(r.SLADeadline)
}

// PendingReviewItem: проекция запроса в статусе AWAITING_REVIEW (Decision Queue).
type PendingReviewItem struct {
	RequestID          string          `json:"request_id"`
	Scope              string          `json:"scope"`
	Domain             string          `json:"domain"`
	RiskLevel          RiskLevel       `json:"risk_level"`
	Confidence         ConfidenceLevel `json:"confidence_level"`
	CreatedAt          time.Time       `json:"created_at"`
	Deadline           time.Time       `json:"deadline"`
	OutputSummary      string          `json:"output_summary"`
	SuggestedReviewers []string        `json:"suggested_reviewers"`
}

// ReviewRequirement: результат Policy Engine.
type ReviewRequirement struct {
	Required           bool     `json:"required"`
	EscalationRequired bool     `json:"escalation_required"`
	SuggestedReviewers []string `json:"suggested_reviewers"`
	Reason             string   `json:"reason"` // Только для аудита, программно не разбирается
}
