package policy

import (
	"time"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

// Deadline: createdAt + бюджет уровня риска.
// Для неизвестного уровня дедлайн равен createdAt: такой элемент сразу просрочен
// и всплывает в очереди overdue, а не теряется.
func (s *Snapshot) Deadline(risk domain.RiskLevel, createdAt time.Time) time.Time {
	hours, ok := s.slaHours[risk]
	if !ok {
		return createdAt
	}
	return createdAt.Add(time.Duration(hours) * time.Hour)
}

// IsOverdue: строго now > deadline. Часов внутри нет, now передает вызывающий.
func (s *Snapshot) IsOverdue(risk domain.RiskLevel, createdAt, now time.Time) bool {
	return now.After(s.Deadline(risk, createdAt))
}

// OverdueItems фильтрует очередь; у каждого элемента свой дедлайн по его уровню риска.
func (s *Snapshot) OverdueItems(pending []domain.PendingReviewItem, now time.Time) []domain.PendingReviewItem {
	out := make([]domain.PendingReviewItem, 0)
	for _, item := range pending {
		if s.IsOverdue(item.RiskLevel, item.CreatedAt, now) {
			out = append(out, item)
		}
	}
	return out
}
