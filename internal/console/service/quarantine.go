package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/copilot-governance/internal/audit"
	"github.com/xela07ax/copilot-governance/internal/domain"
	"go.uber.org/zap"
)

// QuarantineManager: engine.DomainQuarantine
type QuarantineManager interface {
	Quarantine(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
	List() []string
}

type QuarantineService struct {
	manager QuarantineManager
	auditor audit.Auditor
	logger  *zap.Logger
}

func NewQuarantineService(m QuarantineManager, auditor audit.Auditor, logger *zap.Logger) *QuarantineService {
	if auditor == nil {
		auditor = audit.Nop{}
	}
	return &QuarantineService{manager: m, auditor: auditor, logger: logger.Named("quarantine-service")}
}

func (s *QuarantineService) List() []string {
	out := s.manager.List()
	sort.Strings(out)
	return out
}

func (s *QuarantineService) Set(ctx context.Context, name string, on bool, actor string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Validation("domain is required")
	}

	var err error
	if on {
		err = s.manager.Quarantine(ctx, name)
	} else {
		err = s.manager.Release(ctx, name)
	}
	if err != nil {
		return domain.Backend("update domain quarantine", err)
	}

	s.auditor.Log(audit.AuditEvent{
		ID:        uuid.NewString(),
		Action:    audit.ActionDomainQuarantine,
		Domain:    name,
		Actor:     actor,
		Payload:   map[string]any{"quarantined": on},
		Timestamp: time.Now().UTC(),
	})
	return nil
}
