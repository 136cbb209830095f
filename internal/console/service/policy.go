package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/copilot-governance/internal/audit"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"github.com/xela07ax/copilot-governance/internal/policy"
	"go.uber.org/zap"
)

// PolicyRepository описывает требования сервиса к хранилищу политики
type PolicyRepository interface {
	SavePolicy(ctx context.Context, cfg domain.ReviewPolicyConfig, updatedBy string) error
}

// PolicyNotifier рассылает сигнал "перечитай политику" остальным инстансам
type PolicyNotifier interface {
	PolicyUpdated(ctx context.Context) error
}

// PolicyRefresher: engine.PolicyListener (перечитывание с retry/breaker)
type PolicyRefresher interface {
	Refresh(ctx context.Context) error
}

type PolicyService struct {
	repo      PolicyRepository // nil в режиме memory: политика живет только в процессе
	holder    *policy.Holder
	notifier  PolicyNotifier
	refresher PolicyRefresher
	auditor   audit.Auditor
	logger    *zap.Logger
}

func NewPolicyService(repo PolicyRepository, holder *policy.Holder, notifier PolicyNotifier, refresher PolicyRefresher, auditor audit.Auditor, logger *zap.Logger) *PolicyService {
	if auditor == nil {
		auditor = audit.Nop{}
	}
	return &PolicyService{
		repo:      repo,
		holder:    holder,
		notifier:  notifier,
		refresher: refresher,
		auditor:   auditor,
		logger:    logger.Named("policy-service"),
	}
}

// Current: действующая политика
func (s *PolicyService) Current() domain.ReviewPolicyConfig {
	return s.holder.Snapshot().Config()
}

// Update валидирует, сохраняет и применяет новую политику, затем уведомляет остальные инстансы.
// Невалидная политика не доходит до базы.
func (s *PolicyService) Update(ctx context.Context, cfg domain.ReviewPolicyConfig, actor string) (domain.ReviewPolicyConfig, error) {
	snap, err := policy.NewSnapshot(cfg)
	if err != nil {
		return domain.ReviewPolicyConfig{}, err
	}

	if s.repo != nil {
		if err := s.repo.SavePolicy(ctx, snap.Config(), actor); err != nil {
			return domain.ReviewPolicyConfig{}, domain.Backend("save review policy", err)
		}
	}
	s.holder.Store(snap)

	if s.notifier != nil {
		// Сигнал не критичен: остальные подхватят политику по таймеру
		if err := s.notifier.PolicyUpdated(ctx); err != nil {
			s.logger.Warn("policy update signal not published", zap.Error(err))
		}
	}

	s.auditor.Log(audit.AuditEvent{
		ID:        uuid.NewString(),
		Action:    audit.ActionPolicyUpdated,
		Actor:     actor,
		Payload:   map[string]any{"policy": snap.Config()},
		Timestamp: time.Now().UTC(),
	})
	return snap.Config(), nil
}

// Reload перечитывает политику из базы на этом инстансе
func (s *PolicyService) Reload(ctx context.Context) (domain.ReviewPolicyConfig, error) {
	if s.refresher == nil {
		return domain.ReviewPolicyConfig{}, domain.Validation("policy reload requires the postgres storage driver")
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		return domain.ReviewPolicyConfig{}, err
	}
	return s.Current(), nil
}
