package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/copilot-governance/internal/audit"
)

const auditFields = 17

// WriteBatch: пакетная вставка событий журнала (audit.Storage)
func (s *Store) WriteBatch(ctx context.Context, events []audit.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	var placeholders strings.Builder
	vals := make([]any, 0, len(events)*auditFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		if i > 0 {
			placeholders.WriteString(",")
		}
		placeholders.WriteString("(")
		for f := 1; f <= auditFields; f++ {
			if f > 1 {
				placeholders.WriteString(", ")
			}
			fmt.Fprintf(&placeholders, "$%d", i*auditFields+f)
		}
		placeholders.WriteString(")")

		var payload any
		if len(e.Payload) > 0 {
			raw, err := json.Marshal(e.Payload)
			if err != nil {
				return fmt.Errorf("postgres: encode audit payload: %w", err)
			}
			payload = raw
		}

		vals = append(vals,
			e.ID, e.TraceID, e.Action, e.RequestID, e.Scope, e.Domain, e.Actor,
			e.RiskLevel, e.Confidence, e.FromStatus, e.ToStatus, e.Decision, e.Reason,
			payload, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	query := `INSERT INTO governance_audit (id, trace_id, action, request_id, scope, domain, actor,
		risk_level, confidence_level, from_status, to_status, decision, reason,
		payload, error, duration_ms, created_at) VALUES ` + placeholders.String()

	if _, err := s.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}

// FetchEvents: журнал для консоли, новые первыми
func (s *Store) FetchEvents(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error) {
	query := `SELECT id, trace_id, action, request_id, scope, domain, actor,
		risk_level, confidence_level, from_status, to_status, decision, reason,
		payload, error, duration_ms, created_at
		FROM governance_audit
		WHERE ($1 = '' OR request_id = $1) AND ($2 = '' OR action = $2) AND ($3 = '' OR scope = $3)
		ORDER BY created_at DESC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, f.RequestID, f.Action, f.Scope, f.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch audit events: %w", err)
	}
	defer rows.Close()

	out := []audit.AuditEvent{}
	for rows.Next() {
		var (
			e       audit.AuditEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Action, &e.RequestID, &e.Scope, &e.Domain, &e.Actor,
			&e.RiskLevel, &e.Confidence, &e.FromStatus, &e.ToStatus, &e.Decision, &e.Reason,
			&payload, &e.Error, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan audit event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("postgres: decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
