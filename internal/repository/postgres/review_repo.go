package postgres

/*
Файл review_repo.go хранит решения ревьюеров (HumanReview) и очередь ожидания.
Фиксация решения: одна транзакция: CAS статуса, INSERT ревью, DELETE из очереди.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

const reviewColumns = `id, request_id, scope, reviewer_id, decision, modifications, feedback, quality_rating,
	review_time_seconds, reviewed_at, risk_level, sla_deadline`

// FinalizeReview: атомарная фиксация (ledger.Finalizer).
func (s *Store) FinalizeReview(ctx context.Context, review *domain.HumanReview, expected, next domain.RequestStatus) (bool, error) {
	won := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := casStatus(ctx, tx, review.RequestID, expected, next, review.ReviewedAt)
		if err != nil || !ok {
			return err
		}
		if err := insertReview(ctx, tx, review); err != nil {
			return err
		}
		if err := deletePending(ctx, tx, review.RequestID); err != nil {
			return err
		}
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *Store) SaveReview(ctx context.Context, review *domain.HumanReview) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertReview(ctx, tx, review); err != nil {
			return err
		}
		return deletePending(ctx, tx, review.RequestID)
	})
}

func insertReview(ctx context.Context, db execer, r *domain.HumanReview) error {
	query := `INSERT INTO human_reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	var mods any
	if len(r.Modifications) > 0 {
		mods = []byte(r.Modifications)
	}
	var feedback sql.NullString
	if r.Feedback != nil {
		feedback = sql.NullString{String: *r.Feedback, Valid: true}
	}
	var rating sql.NullInt64
	if r.QualityRating != nil {
		rating = sql.NullInt64{Int64: int64(*r.QualityRating), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		r.ID, r.RequestID, r.Scope, r.ReviewerID, r.Decision, mods, feedback, rating,
		r.ReviewTimeSeconds, r.ReviewedAt, r.RiskLevel, r.SLADeadline,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert review: %w", err)
	}
	return nil
}

func (s *Store) GetReview(ctx context.Context, id string) (*domain.HumanReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM human_reviews WHERE id = $1`

	r, err := scanReview(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ReviewNotFound(id)
		}
		return nil, fmt.Errorf("postgres: failed to get review: %w", err)
	}
	return r, nil
}

func (s *Store) GetReviewsForRequest(ctx context.Context, requestID string) ([]domain.HumanReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM human_reviews WHERE request_id = $1 ORDER BY reviewed_at`
	return s.queryReviews(ctx, query, requestID)
}

// ListReviews: пустой scope: все тенанты
func (s *Store) ListReviews(ctx context.Context, scope string, start, end time.Time) ([]domain.HumanReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM human_reviews
		WHERE reviewed_at BETWEEN $1 AND $2 AND ($3 = '' OR scope = $3)
		ORDER BY reviewed_at`
	return s.queryReviews(ctx, query, start, end, scope)
}

func (s *Store) queryReviews(ctx context.Context, query string, args ...any) ([]domain.HumanReview, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query reviews: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	out := make([]domain.HumanReview, 0)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan review: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReview(row scanner) (*domain.HumanReview, error) {
	var (
		r        domain.HumanReview
		mods     []byte
		feedback sql.NullString
		rating   sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.RequestID, &r.Scope, &r.ReviewerID, &r.Decision, &mods, &feedback, &rating,
		&r.ReviewTimeSeconds, &r.ReviewedAt, &r.RiskLevel, &r.SLADeadline,
	)
	if err != nil {
		return nil, err
	}
	if len(mods) > 0 {
		r.Modifications = json.RawMessage(mods)
	}
	if feedback.Valid {
		val := feedback.String
		r.Feedback = &val
	}
	if rating.Valid {
		val := int(rating.Int64)
		r.QualityRating = &val
	}
	return &r, nil
}
