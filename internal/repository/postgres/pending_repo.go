package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

const pendingColumns = `request_id, scope, domain, risk_level, confidence_level, created_at, deadline,
	output_summary, suggested_reviewers`

func (s *Store) SavePending(ctx context.Context, item domain.PendingReviewItem) error {
	return upsertPending(ctx, s.db, item)
}

// errStatusMoved откатывает транзакцию постановки в очередь, если статус уже другой
var errStatusMoved = errors.New("postgres: request status moved")

// EnqueueReview: атомарная постановка в очередь (ledger.Enqueuer).
// CAS статуса и запись pending в одной транзакции: ревьюер не увидит
// AWAITING_REVIEW без элемента очереди.
func (s *Store) EnqueueReview(ctx context.Context, item domain.PendingReviewItem, expected domain.RequestStatus, at time.Time) (bool, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := casStatus(ctx, tx, item.RequestID, expected, domain.StatusAwaitingReview, at)
		if err != nil {
			return err
		}
		if !ok {
			return errStatusMoved
		}
		return upsertPending(ctx, tx, item)
	})
	if errors.Is(err, errStatusMoved) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func upsertPending(ctx context.Context, db execer, item domain.PendingReviewItem) error {
	query := `INSERT INTO pending_reviews (` + pendingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (request_id) DO UPDATE SET
			deadline = EXCLUDED.deadline,
			output_summary = EXCLUDED.output_summary,
			suggested_reviewers = EXCLUDED.suggested_reviewers`

	reviewers := item.SuggestedReviewers
	if reviewers == nil {
		reviewers = []string{}
	}
	roles, err := json.Marshal(reviewers)
	if err != nil {
		return fmt.Errorf("postgres: encode reviewers: %w", err)
	}

	_, err = db.ExecContext(ctx, query,
		item.RequestID, item.Scope, item.Domain, item.RiskLevel, item.Confidence,
		item.CreatedAt, item.Deadline, item.OutputSummary, roles,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save pending review: %w", err)
	}
	return nil
}

func (s *Store) GetPending(ctx context.Context, requestID string) (*domain.PendingReviewItem, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_reviews WHERE request_id = $1`

	item, err := scanPending(s.db.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get pending review: %w", err)
	}
	return item, nil
}

func (s *Store) RemovePending(ctx context.Context, requestID string) error {
	return deletePending(ctx, s.db, requestID)
}

func deletePending(ctx context.Context, db execer, requestID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM pending_reviews WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("postgres: failed to delete pending review: %w", err)
	}
	return nil
}

// GetPendingReviews: Decision Queue, старые запросы первыми
func (s *Store) GetPendingReviews(ctx context.Context, scope string) ([]domain.PendingReviewItem, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_reviews
		WHERE ($1 = '' OR scope = $1)
		ORDER BY created_at, request_id`

	rows, err := s.db.QueryContext(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query pending reviews: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PendingReviewItem, 0)
	for rows.Next() {
		item, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan pending review: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func scanPending(row scanner) (*domain.PendingReviewItem, error) {
	var (
		item  domain.PendingReviewItem
		roles []byte
	)
	err := row.Scan(
		&item.RequestID, &item.Scope, &item.Domain, &item.RiskLevel, &item.Confidence,
		&item.CreatedAt, &item.Deadline, &item.OutputSummary, &roles,
	)
	if err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &item.SuggestedReviewers); err != nil {
			return nil, fmt.Errorf("decode reviewers: %w", err)
		}
	}
	return &item, nil
}
