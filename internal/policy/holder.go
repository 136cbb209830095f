package policy

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/xela07ax/copilot-governance/internal/domain"
	"go.uber.org/zap"
)

// Source: откуда Holder перечитывает политику при hot-reload (обычно Postgres).
type Source interface {
	LoadPolicy(ctx context.Context) (domain.ReviewPolicyConfig, error)
}

// Holder хранит текущий снимок политики. Это "Hot Path": воркеры читают
// только атомарный указатель и ничего не знают про БД. Один вызов Decide всегда
// видит один снимок целиком, смешение старых и новых порогов невозможно.
type Holder struct {
	current atomic.Pointer[Snapshot]

	source Source // Используется только для Refresh()
	logger *zap.Logger
}

func NewHolder(initial *Snapshot, source Source, logger *zap.Logger) *Holder {
	h := &Holder{
		source: source,
		logger: logger.Named("policy"),
	}
	h.current.Store(initial)
	return h
}

// Snapshot: текущая политика. Вызывающий держит ссылку на время одного решения.
func (h *Holder) Snapshot() *Snapshot {
	return h.current.Load()
}

// Store атомарно подменяет снимок (уже валидированный).
func (h *Holder) Store(s *Snapshot) {
	if s == nil {
		return
	}
	h.current.Store(s)
}

// Refresh перечитывает политику из источника. Невалидная конфигурация
// отклоняется, и продолжает действовать предыдущий снимок.
func (h *Holder) Refresh(ctx context.Context) error {
	if h.source == nil {
		return errors.New("policy: no source configured for refresh")
	}

	cfg, err := h.source.LoadPolicy(ctx)
	if err != nil {
		h.logger.Error("policy reload failed: source unavailable", zap.Error(err))
		return domain.Backend("load review policy", err)
	}

	snap, err := NewSnapshot(cfg)
	if err != nil {
		h.logger.Error("policy reload rejected: keeping previous snapshot", zap.Error(err))
		return err
	}

	h.current.Store(snap)
	h.logger.Info("review policy refreshed",
		zap.Bool("auto_approve_low_risk", cfg.AutoApproveLowRisk),
		zap.String("auto_approval_min_confidence", string(snap.autoApprovalMinConfidence)),
		zap.Bool("escalate_critical_risk", cfg.EscalateCriticalRisk),
	)
	return nil
}
