package domain

import (
	"fmt"
	"math"
	"strings"
)

// RiskLevel: уровень риска, присвоенный AI-решению воркером.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevels перечисляет уровни по возрастанию строгости.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank возвращает порядковый номер уровня. Порядок задан явно,
// а не позицией в объявлении: перестановка констант не должна менять политику.
// Для неизвестного значения -1.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

func (r RiskLevel) Valid() bool { return r.Rank() >= 0 }

// AtLeast сравнивает уровни; неизвестные значения никогда не проходят порог.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	if !r.Valid() || !other.Valid() {
		return false
	}
	return r.Rank() >= other.Rank()
}

func (r RiskLevel) String() string { return string(r) }

// ParseRiskLevel принимает значение в любом регистре (viper приводит ключи к нижнему).
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", Validation(fmt.Sprintf("unknown risk level %q", s))
	}
	return r, nil
}

// ConfidenceLevel: дискретизированная самооценка уверенности модели.
type ConfidenceLevel string

const (
	ConfidenceVeryLow  ConfidenceLevel = "VERY_LOW"
	ConfidenceLow      ConfidenceLevel = "LOW"
	ConfidenceMedium   ConfidenceLevel = "MEDIUM"
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceVeryHigh ConfidenceLevel = "VERY_HIGH"
)

var ConfidenceLevels = []ConfidenceLevel{
	ConfidenceVeryLow, ConfidenceLow, ConfidenceMedium, ConfidenceHigh, ConfidenceVeryHigh,
}

func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceVeryLow:
		return 0
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	case ConfidenceVeryHigh:
		return 4
	default:
		return -1
	}
}

func (c ConfidenceLevel) Valid() bool { return c.Rank() >= 0 }

func (c ConfidenceLevel) AtLeast(threshold ConfidenceLevel) bool {
	if !c.Valid() || !threshold.Valid() {
		return false
	}
	return c.Rank() >= threshold.Rank()
}

func (c ConfidenceLevel) String() string { return string(c) }

func ParseConfidenceLevel(s string) (ConfidenceLevel, error) {
	c := ConfidenceLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", Validation(fmt.Sprintf("unknown confidence level %q", s))
	}
	return c, nil
}

// Границы дискретизации score -> level.
const (
	confidenceLowFloor      = 0.3
	confidenceMediumFloor   = 0.5
	confidenceHighFloor     = 0.7
	confidenceVeryHighFloor = 0.85
)

// ConfidenceFromScore переводит score из [0,1] в уровень уверенности.
func ConfidenceFromScore(score float64) (ConfidenceLevel, error) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return "", Validation(fmt.Sprintf("confidence score %v is outside [0,1]", score))
	}
	switch {
	case score < confidenceLowFloor:
		return ConfidenceVeryLow, nil
	case score < confidenceMediumFloor:
		return ConfidenceLow, nil
	case score < confidenceHighFloor:
		return ConfidenceMedium, nil
	case score < confidenceVeryHighFloor:
		return ConfidenceHigh, nil
	default:
		return ConfidenceVeryHigh, nil
	}
}
