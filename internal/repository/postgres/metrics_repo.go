package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

// GetReviewMetrics считает агрегаты окна на стороне базы (metrics.MetricsQuerier).
func (s *Store) GetReviewMetrics(ctx context.Context, scope string, start, end time.Time) (domain.ReviewCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE decision = 'approved'),
			COUNT(*) FILTER (WHERE decision = 'rejected'),
			COUNT(*) FILTER (WHERE decision = 'modified'),
			COALESCE(SUM(review_time_seconds), 0),
			COUNT(quality_rating),
			COALESCE(SUM(quality_rating), 0),
			COUNT(*) FILTER (WHERE reviewed_at <= sla_deadline)
		FROM human_reviews
		WHERE reviewed_at BETWEEN $1 AND $2 AND ($3 = '' OR scope = $3)`

	var c domain.ReviewCounts
	err := s.db.QueryRowContext(ctx, query, start, end, scope).Scan(
		&c.Total, &c.Approved, &c.Rejected, &c.Modified,
		&c.SumReviewTimeSeconds, &c.Rated, &c.SumQualityRating, &c.WithinSLA,
	)
	if err != nil {
		return domain.ReviewCounts{}, fmt.Errorf("postgres: failed to aggregate reviews: %w", err)
	}

	byRisk := `
		SELECT risk_level, COUNT(*)
		FROM human_reviews
		WHERE reviewed_at BETWEEN $1 AND $2 AND ($3 = '' OR scope = $3)
		GROUP BY risk_level`

	rows, err := s.db.QueryContext(ctx, byRisk, start, end, scope)
	if err != nil {
		return domain.ReviewCounts{}, fmt.Errorf("postgres: failed to group reviews by risk: %w", err)
	}
	defer rows.Close()

	c.ByRisk = make(map[domain.RiskLevel]int64)
	for rows.Next() {
		var (
			risk domain.RiskLevel
			n    int64
		)
		if err := rows.Scan(&risk, &n); err != nil {
			return domain.ReviewCounts{}, fmt.Errorf("postgres: failed to scan risk bucket: %w", err)
		}
		c.ByRisk[risk] = n
	}
	return c, rows.Err()
}
