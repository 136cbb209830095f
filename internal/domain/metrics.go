package domain

// ReviewMetrics: сводка по истории ревью за окно.
// Правило для "modified": отдельная корзина, в ApprovalRate не входит,
// так что approval + rejection + modification = 1 на непустом окне.
type ReviewMetrics struct {
	TotalReviews         int64               `json:"total_reviews"`
	ApprovalRate         float64             `json:"approval_rate"`
	RejectionRate        float64             `json:"rejection_rate"`
	ModificationRate     float64             `json:"modification_rate"`
	AvgReviewTimeSeconds float64             `json:"avg_review_time_seconds"`
	AvgQualityRating     float64             `json:"avg_quality_rating"`
	ReviewsByRiskLevel   map[RiskLevel]int64 `json:"reviews_by_risk_level"`
	SLAComplianceRate    float64             `json:"sla_compliance_rate"`
}

// ReviewCounts: сырые агрегаты. Их умеет считать и память, и Postgres (FILTER),
// а деление выполняется в одном месте.
type ReviewCounts struct {
	Total    int64
	Approved int64
	Rejected int64
	Modified int64

	SumReviewTimeSeconds float64
	Rated                int64
	SumQualityRating     float64
	WithinSLA            int64

	ByRisk map[RiskLevel]int64
}

// Add учитывает одно ревью.
func (c *ReviewCounts) Add(r HumanReview) {
	c.Total++
	switch r.Decision {
	case DecisionApproved:
		c.Approved++
	case DecisionRejected:
		c.Rejected++
	case DecisionModified:
		c.Modified++
	}
	c.SumReviewTimeSeconds += r.ReviewTimeSeconds
	if r.QualityRating != nil {
		c.Rated++
		c.SumQualityRating += float64(*r.QualityRating)
	}
	if r.MetSLA() {
		c.WithinSLA++
	}
	if c.ByRisk == nil {
		c.ByRisk = make(map[RiskLevel]int64)
	}
	if r.RiskLevel != "" {
		c.ByRisk[r.RiskLevel]++
	}
}

// Metrics делит с max(n,1): пустое окно дает нули, а не NaN.
func (c ReviewCounts) Metrics() ReviewMetrics {
	total := float64(max(c.Total, 1))
	rated := float64(max(c.Rated, 1))

	byRisk := make(map[RiskLevel]int64, len(RiskLevels))
	for _, r := range RiskLevels {
		byRisk[r] = c.ByRisk[r]
	}

	return ReviewMetrics{
		TotalReviews:         c.Total,
		ApprovalRate:         float64(c.Approved) / total,
		RejectionRate:        float64(c.Rejected) / total,
		ModificationRate:     float64(c.Modified) / total,
		AvgReviewTimeSeconds: c.SumReviewTimeSeconds / total,
		AvgQualityRating:     c.SumQualityRating / rated,
		ReviewsByRiskLevel:   byRisk,
		SLAComplianceRate:    float64(c.WithinSLA) / total,
	}
}
