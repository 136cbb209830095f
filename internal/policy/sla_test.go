package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/copilot-governance/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestDeadline_OrderingInvariant(t *testing.T) {
	s := defaultSnapshot(t)

	critical := s.Deadline(domain.RiskCritical, t0)
	high := s.Deadline(domain.RiskHigh, t0)
	medium := s.Deadline(domain.RiskMedium, t0)
	low := s.Deadline(domain.RiskLow, t0)

	assert.True(t, critical.Before(high))
	assert.True(t, high.Before(medium))
	assert.True(t, medium.Before(low))
	assert.Equal(t, t0.Add(8*time.Hour), high)
}

func TestIsOverdue_ScenarioD(t *testing.T) {
	s := defaultSnapshot(t)

	assert.True(t, s.IsOverdue(domain.RiskHigh, t0, t0.Add(9*time.Hour)))
	assert.False(t, s.IsOverdue(domain.RiskHigh, t0, t0.Add(7*time.Hour)))
	// Ровно на дедлайне еще не просрочено
	assert.False(t, s.IsOverdue(domain.RiskHigh, t0, t0.Add(8*time.Hour)))
}

func TestDeadline_UnknownRiskIsImmediatelyDue(t *testing.T) {
	s := defaultSnapshot(t)

	assert.Equal(t, t0, s.Deadline(domain.RiskLevel("SEVERE"), t0))
	assert.True(t, s.IsOverdue(domain.RiskLevel("SEVERE"), t0, t0.Add(time.Second)))
}

func TestOverdueItems_UsesEachItemsOwnRisk(t *testing.T) {
	s := defaultSnapshot(t)
	now := t0.Add(10 * time.Hour)

	pending := []domain.PendingReviewItem{
		{RequestID: "crit", RiskLevel: domain.RiskCritical, CreatedAt: t0},
		{RequestID: "high", RiskLevel: domain.RiskHigh, CreatedAt: t0},
		{RequestID: "medium", RiskLevel: domain.RiskMedium, CreatedAt: t0},
		{RequestID: "high-fresh", RiskLevel: domain.RiskHigh, CreatedAt: t0.Add(5 * time.Hour)},
	}

	overdue := s.OverdueItems(pending, now)

	ids := make([]string, 0, len(overdue))
	for _, it := range overdue {
		ids = append(ids, it.RequestID)
	}
	assert.Equal(t, []string{"crit", "high"}, ids)
	assert.NotNil(t, s.OverdueItems(nil, now))
}
