package service

import (
	"context"

	"github.com/xela07ax/copilot-governance/internal/audit"
	"github.com/xela07ax/copilot-governance/internal/domain"
)

// AuditLogProvider описывает контракт для чтения данных аудита.
type AuditLogProvider interface {
	FetchEvents(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

// FetchLogs: события журнала; фильтрация на стороне хранилища
func (s *AuditService) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error) {
	logs, err := s.repo.FetchEvents(ctx, f)
	if err != nil {
		return nil, domain.Backend("fetch audit events", err)
	}
	return logs, nil
}
