package domain

// ReviewPolicyConfig: сырая форма политики ревью, как она приходит из config.yaml или БД.
// Валидацию и неизменяемость обеспечивает policy.Snapshot.
type ReviewPolicyConfig struct {
	AutoApproveLowRisk        bool            `mapstructure:"auto_approve_low_risk" json:"auto_approve_low_risk"`
	AutoApprovalMinConfidence ConfidenceLevel `mapstructure:"auto_approval_min_confidence" json:"auto_approval_min_confidence"`
	EscalateCriticalRisk      bool            `mapstructure:"escalate_critical_risk" json:"escalate_critical_risk"`

	// Ключи: уровни риска в любом регистре (viper приводит их к нижнему)
	ReviewSLAHours map[string]int `mapstructure:"review_sla_hours" json:"review_sla_hours"`
}

// DefaultReviewPolicy: значения по умолчанию для нового инстанса.
func DefaultReviewPolicy() ReviewPolicyConfig {
	return ReviewPolicyConfig{
		AutoApproveLowRisk:        true,
		AutoApprovalMinConfidence: ConfidenceHigh,
		EscalateCriticalRisk:      true,
		ReviewSLAHours: map[string]int{
			string(RiskLow):      48,
			string(RiskMedium):   24,
			string(RiskHigh):     8,
			string(RiskCritical): 2,
		},
	}
}
