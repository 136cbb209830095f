package domain

import (
	"fmt"
	"strings"
	"time"
)

// Статусы State Machine
type RequestStatus string

const (
	StatusPending        RequestStatus = "PENDING"
	StatusProcessing     RequestStatus = "PROCESSING"
	StatusAwaitingReview RequestStatus = "AWAITING_REVIEW"
	StatusApproved       RequestStatus = "APPROVED"
	StatusRejected       RequestStatus = "REJECTED"
	StatusAutoApproved   RequestStatus = "AUTO_APPROVED"
	StatusCancelled      RequestStatus = "CANCELLED"
	StatusFailed         RequestStatus = "FAILED"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusAwaitingReview, StatusApproved,
		StatusRejected, StatusAutoApproved, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal: из терминального статуса переходов нет.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusAutoApproved, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// FinalizedByReview: статусы, которые достигаются только через HumanReview.
func (s RequestStatus) FinalizedByReview() bool {
	return s == StatusApproved || s == StatusRejected
}

func ParseRequestStatus(s string) (RequestStatus, error) {
	st := RequestStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", Validation(fmt.Sprintf("unknown request status %q", s))
	}
	return st, nil
}

// CanTransition проверяет правила конечного автомата.
// AWAITING_REVIEW -> APPROVED/REJECTED здесь разрешен, но вызывать его
// имеет право только Review Ledger при фиксации решения.
func CanTransition(from, to RequestStatus) error {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return &TransitionError{From: from, To: to}
	}

	// Из любого нетерминального статуса можно отменить или провалить запрос
	if to == StatusCancelled || to == StatusFailed {
		return nil
	}

	ok := false
	switch from {
	case StatusPending:
		ok = to == StatusProcessing
	case StatusProcessing:
		ok = to == StatusAwaitingReview || to == StatusAutoApproved
	case StatusAwaitingReview:
		ok = to == StatusApproved || to == StatusRejected
	}
	if !ok {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// CopilotRequest: единица работы под контролем governance.
type CopilotRequest struct {
	ID         string          `json:"id"`
	Scope      string          `json:"scope"`  // Граница тенанта/организации
	Domain     string          `json:"domain"` // Какая задача породила вывод, e.g. "maintenance_triage"
	RiskLevel  RiskLevel       `json:"risk_level"`
	Confidence ConfidenceLevel `json:"confidence_level"`
	Status     RequestStatus   `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate отсекает мусор до любой записи в хранилище.
func (r *CopilotRequest) Validate() error {
	if r.ID == "" {
		return Validation("request id is required")
	}
	if r.Domain == "" {
		return Validation("request domain is required")
	}
	if !r.RiskLevel.Valid() {
		return Validation(fmt.Sprintf("unknown risk level %q", r.RiskLevel))
	}
	if !r.Confidence.Valid() {
		return Validation(fmt.Sprintf("unknown confidence level %q", r.Confidence))
	}
	return nil
}
