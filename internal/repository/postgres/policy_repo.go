package postgres

/*
Файл policy_repo.go хранит действующую политику ревью.
Долговременное хранение в PostgreSQL отделено от проверки в памяти:
policy.Holder читает отсюда только при старте и при сигнале обновления.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

// LoadPolicy реализует policy.Source
func (s *Store) LoadPolicy(ctx context.Context) (domain.ReviewPolicyConfig, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT config FROM review_policy WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReviewPolicyConfig{}, fmt.Errorf("postgres: review policy is not configured")
		}
		return domain.ReviewPolicyConfig{}, fmt.Errorf("postgres: failed to load policy: %w", err)
	}

	var cfg domain.ReviewPolicyConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.ReviewPolicyConfig{}, fmt.Errorf("postgres: failed to decode policy: %w", err)
	}
	return cfg, nil
}

// SavePolicy перезаписывает политику. Валидация: до вызова, через policy.NewSnapshot.
func (s *Store) SavePolicy(ctx context.Context, cfg domain.ReviewPolicyConfig, updatedBy string) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode policy: %w", err)
	}

	query := `
		INSERT INTO review_policy (id, config, updated_by, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_by = EXCLUDED.updated_by, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, raw, updatedBy); err != nil {
		return fmt.Errorf("postgres: failed to save policy: %w", err)
	}
	return nil
}
