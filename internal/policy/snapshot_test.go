package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/copilot-governance/internal/domain"
)

func defaultSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := NewSnapshot(domain.DefaultReviewPolicy())
	require.NoError(t, err)
	return s
}

func mustConfidence(t *testing.T, score float64) domain.ConfidenceLevel {
	t.Helper()
	c, err := domain.ConfidenceFromScore(score)
	require.NoError(t, err)
	return c
}

func TestDecide_ScenarioA_LowRiskHighConfidenceAutoApproves(t *testing.T) {
	s := defaultSnapshot(t)

	req := s.Decide(domain.RiskLow, mustConfidence(t, 0.9), "maintenance_triage")

	assert.False(t, req.Required)
	assert.False(t, req.EscalationRequired)
	assert.Empty(t, req.SuggestedReviewers)
	assert.NotEmpty(t, req.Reason)
}

func TestDecide_ScenarioB_MediumRiskMediumConfidenceNeedsReview(t *testing.T) {
	s := defaultSnapshot(t)

	req := s.Decide(domain.RiskMedium, mustConfidence(t, 0.6), "churn_prediction")

	assert.True(t, req.Required)
	assert.False(t, req.EscalationRequired)
	assert.Equal(t, []string{"team_lead", "domain_expert"}, req.SuggestedReviewers)
}

func TestDecide_ScenarioC_CriticalAlwaysEscalates(t *testing.T) {
	s := defaultSnapshot(t)

	req := s.Decide(domain.RiskCritical, mustConfidence(t, 0.99), "maintenance_triage")

	assert.True(t, req.Required)
	assert.True(t, req.EscalationRequired)
	assert.Equal(t, []string{"senior_manager", "compliance_officer"}, req.SuggestedReviewers)
}

func TestDecide_CriticalEscalationFollowsPolicy(t *testing.T) {
	cfg := domain.DefaultReviewPolicy()
	cfg.EscalateCriticalRisk = false
	s := MustSnapshot(cfg)

	req := s.Decide(domain.RiskCritical, domain.ConfidenceVeryHigh, "x")
	assert.True(t, req.Required)
	assert.False(t, req.EscalationRequired)
}

func TestDecide_HighRiskIgnoresConfidence(t *testing.T) {
	s := defaultSnapshot(t)
	for _, c := range domain.ConfidenceLevels {
		req := s.Decide(domain.RiskHigh, c, "x")
		assert.True(t, req.Required, "confidence %s", c)
		assert.False(t, req.EscalationRequired)
		assert.Equal(t, []string{"manager", "domain_expert"}, req.SuggestedReviewers)
	}
}

func TestDecide_MediumRiskUsesFixedHighThreshold(t *testing.T) {
	// Настраиваемый порог для LOW не должен влиять на MEDIUM
	cfg := domain.DefaultReviewPolicy()
	cfg.AutoApprovalMinConfidence = domain.ConfidenceVeryLow
	s := MustSnapshot(cfg)

	assert.False(t, s.Decide(domain.RiskMedium, domain.ConfidenceHigh, "x").Required)
	assert.False(t, s.Decide(domain.RiskMedium, domain.ConfidenceVeryHigh, "x").Required)
	assert.True(t, s.Decide(domain.RiskMedium, domain.ConfidenceMedium, "x").Required)
}

func TestDecide_LowRiskRespectsConfigurableThreshold(t *testing.T) {
	cfg := domain.DefaultReviewPolicy()
	cfg.AutoApprovalMinConfidence = domain.ConfidenceVeryHigh
	s := MustSnapshot(cfg)

	assert.True(t, s.Decide(domain.RiskLow, domain.ConfidenceHigh, "x").Required)
	assert.False(t, s.Decide(domain.RiskLow, domain.ConfidenceVeryHigh, "x").Required)

	req := s.Decide(domain.RiskLow, domain.ConfidenceLow, "x")
	assert.Equal(t, []string{"reviewer"}, req.SuggestedReviewers)
}

func TestDecide_LowRiskAutoApprovalDisabled(t *testing.T) {
	cfg := domain.DefaultReviewPolicy()
	cfg.AutoApproveLowRisk = false
	s := MustSnapshot(cfg)

	req := s.Decide(domain.RiskLow, domain.ConfidenceVeryHigh, "x")
	assert.True(t, req.Required)
	assert.Contains(t, req.Reason, "disabled")
}

func TestDecide_UnknownInputsFailSafe(t *testing.T) {
	s := defaultSnapshot(t)

	assert.True(t, s.Decide(domain.RiskLevel("SEVERE"), domain.ConfidenceVeryHigh, "x").Required)
	assert.True(t, s.Decide("", domain.ConfidenceVeryHigh, "x").Required)
	assert.True(t, s.Decide(domain.RiskLow, domain.ConfidenceLevel("CERTAIN"), "x").Required)
	assert.True(t, s.Decide(domain.RiskMedium, "", "x").Required)
}

func TestDecide_SuggestedReviewersAreNotShared(t *testing.T) {
	s := defaultSnapshot(t)

	first := s.Decide(domain.RiskCritical, domain.ConfidenceHigh, "x")
	first.SuggestedReviewers[0] = "intern"

	second := s.Decide(domain.RiskCritical, domain.ConfidenceHigh, "x")
	assert.Equal(t, "senior_manager", second.SuggestedReviewers[0])
}

func TestNewSnapshot_ConfigErrors(t *testing.T) {
	cases := map[string]func(*domain.ReviewPolicyConfig){
		"inverted sla": func(c *domain.ReviewPolicyConfig) {
			c.ReviewSLAHours["HIGH"] = 30
		},
		"equal sla": func(c *domain.ReviewPolicyConfig) {
			c.ReviewSLAHours["CRITICAL"] = 8
		},
		"missing level": func(c *domain.ReviewPolicyConfig) {
			delete(c.ReviewSLAHours, "MEDIUM")
		},
		"non-positive hours": func(c *domain.ReviewPolicyConfig) {
			c.ReviewSLAHours["CRITICAL"] = 0
		},
		"unknown level key": func(c *domain.ReviewPolicyConfig) {
			c.ReviewSLAHours["SEVERE"] = 1
		},
		"same level in two cases": func(c *domain.ReviewPolicyConfig) {
			c.ReviewSLAHours["low"] = 1
		},
		"missing threshold": func(c *domain.ReviewPolicyConfig) {
			c.AutoApprovalMinConfidence = ""
		},
		"unknown threshold": func(c *domain.ReviewPolicyConfig) {
			c.AutoApprovalMinConfidence = "ALMOST_SURE"
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := domain.DefaultReviewPolicy()
			mutate(&cfg)

			_, err := NewSnapshot(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfig)
			assert.False(t, domain.IsRetryable(err))
		})
	}
}

func TestNewSnapshot_AcceptsLowercaseKeys(t *testing.T) {
	cfg := domain.ReviewPolicyConfig{
		AutoApproveLowRisk:        true,
		AutoApprovalMinConfidence: "high",
		ReviewSLAHours:            map[string]int{"low": 72, "medium": 12, "high": 4, "critical": 1},
	}
	s, err := NewSnapshot(cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, s.SLAHours()[domain.RiskHigh])
	assert.Equal(t, domain.ConfidenceHigh, s.Config().AutoApprovalMinConfidence)
}

func TestSnapshotConfig_RoundTripsThroughValidation(t *testing.T) {
	s := defaultSnapshot(t)

	again, err := NewSnapshot(s.Config())
	require.NoError(t, err)
	assert.Equal(t, s.SLAHours(), again.SLAHours())

	// Копия наружу не меняет снимок
	s.SLAHours()[domain.RiskLow] = 1
	assert.Equal(t, 48, s.SLAHours()[domain.RiskLow])
}
