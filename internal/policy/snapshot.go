package policy

/*
Файл snapshot.go содержит Review Policy Engine: чистую функцию принятия решения
"нужен ли человек" поверх неизменяемого снимка конфигурации.

Снимок валидируется один раз при загрузке (старт или hot-reload). Все ошибки
конфигурации фатальны именно здесь; Decide никогда не возвращает ошибку и при
любой неясности выбирает ревью (fail-safe в сторону человека).
*/

import (
	"fmt"
	"maps"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

// Наборы ролей ревьюеров по уровням строгости
var (
	rolesCritical = []string{"senior_manager", "compliance_officer"}
	rolesElevated = []string{"manager", "domain_expert"}
	rolesStandard = []string{"team_lead", "domain_expert"}
	rolesGeneric  = []string{"reviewer"}
)

// mediumRiskMinConfidence: фиксированный порог для MEDIUM, в отличие от LOW не настраивается.
const mediumRiskMinConfidence = domain.ConfidenceHigh

// Snapshot: валидированная, неизменяемая политика. Безопасна для конкурентного чтения.
type Snapshot struct {
	autoApproveLowRisk        bool
	autoApprovalMinConfidence domain.ConfidenceLevel
	escalateCriticalRisk      bool
	slaHours                  map[domain.RiskLevel]int
}

// NewSnapshot проверяет конфигурацию и строит снимок.
// Инверсия SLA (более высокий риск с бОльшим сроком): ошибка конфигурации.
func NewSnapshot(cfg domain.ReviewPolicyConfig) (*Snapshot, error) {
	s := &Snapshot{
		autoApproveLowRisk:   cfg.AutoApproveLowRisk,
		escalateCriticalRisk: cfg.EscalateCriticalRisk,
		slaHours:             make(map[domain.RiskLevel]int, len(domain.RiskLevels)),
	}

	if cfg.AutoApprovalMinConfidence == "" {
		return nil, domain.Config("auto_approval_min_confidence is required")
	}
	minConf, err := domain.ParseConfidenceLevel(string(cfg.AutoApprovalMinConfidence))
	if err != nil {
		return nil, domain.Config(fmt.Sprintf("auto_approval_min_confidence: unknown level %q", cfg.AutoApprovalMinConfidence))
	}
	s.autoApprovalMinConfidence = minConf

	for key, hours := range cfg.ReviewSLAHours {
		risk, err := domain.ParseRiskLevel(key)
		if err != nil {
			return nil, domain.Config(fmt.Sprintf("review_sla_hours: unknown risk level %q", key))
		}
		if _, dup := s.slaHours[risk]; dup {
			return nil, domain.Config(fmt.Sprintf("review_sla_hours: %s is set more than once", risk))
		}
		if hours <= 0 {
			return nil, domain.Config(fmt.Sprintf("review_sla_hours[%s] must be positive, got %d", risk, hours))
		}
		s.slaHours[risk] = hours
	}

	// Каждый уровень обязан иметь бюджет, и бюджет строго убывает с ростом риска
	for i, risk := range domain.RiskLevels {
		hours, ok := s.slaHours[risk]
		if !ok {
			return nil, domain.Config(fmt.Sprintf("review_sla_hours[%s] is missing", risk))
		}
		if i == 0 {
			continue
		}
		lower := domain.RiskLevels[i-1]
		if hours >= s.slaHours[lower] {
			return nil, domain.Config(fmt.Sprintf(
				"review_sla_hours must strictly decrease with risk: %s=%dh is not below %s=%dh",
				risk, hours, lower, s.slaHours[lower]))
		}
	}

	return s, nil
}

// MustSnapshot: для тестов и дефолтов, которые заведомо валидны.
func MustSnapshot(cfg domain.ReviewPolicyConfig) *Snapshot {
	s, err := NewSnapshot(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Config возвращает копию конфигурации снимка (для Console API).
func (s *Snapshot) Config() domain.ReviewPolicyConfig {
	hours := make(map[string]int, len(s.slaHours))
	for risk, h := range s.slaHours {
		hours[string(risk)] = h
	}
	return domain.ReviewPolicyConfig{
		AutoApproveLowRisk:        s.autoApproveLowRisk,
		AutoApprovalMinConfidence: s.autoApprovalMinConfidence,
		EscalateCriticalRisk:      s.escalateCriticalRisk,
		ReviewSLAHours:            hours,
	}
}

// SLAHours возвращает копию таблицы бюджетов.
func (s *Snapshot) SLAHours() map[domain.RiskLevel]int {
	return maps.Clone(s.slaHours)
}

// Decide: порядок правил строгий, первое совпадение выигрывает.
// domainTag в правилах не участвует: карантин доменов применяет Governor поверх.
func (s *Snapshot) Decide(risk domain.RiskLevel, confidence domain.ConfidenceLevel, domainTag string) domain.ReviewRequirement {
	switch risk {
	case domain.RiskCritical:
		return domain.ReviewRequirement{
			Required:           true,
			EscalationRequired: s.escalateCriticalRisk,
			SuggestedReviewers: roles(rolesCritical),
			Reason:             "critical risk always requires human review",
		}

	case domain.RiskHigh:
		// Уверенность не учитывается
		return domain.ReviewRequirement{
			Required:           true,
			SuggestedReviewers: roles(rolesElevated),
			Reason:             "high risk always requires human review",
		}

	case domain.RiskMedium:
		if confidence.AtLeast(mediumRiskMinConfidence) {
			return domain.ReviewRequirement{
				Reason: fmt.Sprintf("medium risk with %s confidence meets the %s threshold", confidence, mediumRiskMinConfidence),
			}
		}
		return domain.ReviewRequirement{
			Required:           true,
			SuggestedReviewers: roles(rolesStandard),
			Reason:             fmt.Sprintf("medium risk with %s confidence is below the %s threshold", confidence, mediumRiskMinConfidence),
		}

	case domain.RiskLow:
		if s.autoApproveLowRisk && confidence.AtLeast(s.autoApprovalMinConfidence) {
			return domain.ReviewRequirement{
				Reason: fmt.Sprintf("low risk auto-approval: %s confidence meets the %s threshold", confidence, s.autoApprovalMinConfidence),
			}
		}
		reason := fmt.Sprintf("low risk with %s confidence is below the %s threshold", confidence, s.autoApprovalMinConfidence)
		if !s.autoApproveLowRisk {
			reason = "low risk auto-approval is disabled"
		}
		return domain.ReviewRequirement{
			Required:           true,
			SuggestedReviewers: roles(rolesGeneric),
			Reason:             reason,
		}
	}

	// Неизвестный уровень риска: не падаем, а отправляем человеку
	return domain.ReviewRequirement{
		Required:           true,
		SuggestedReviewers: roles(rolesElevated),
		Reason:             fmt.Sprintf("unrecognized risk level %q, defaulting to human review", risk),
	}
}

// roles отдает копию, чтобы вызывающий не мог испортить общий набор
func roles(set []string) []string {
	out := make([]string, len(set))
	copy(out, set)
	return out
}

// ElevatedReviewers: роли для принудительного ревью поверх политики (карантин домена)
func ElevatedReviewers() []string {
	return roles(rolesElevated)
}
