package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xela07ax/copilot-governance/internal/domain"
)

// uniqueViolation: SQLSTATE 23505
const uniqueViolation = "23505"

const requestColumns = `id, scope, domain, risk_level, confidence_level, status, created_at, updated_at`

func (s *Store) CreateRequest(ctx context.Context, req *domain.CopilotRequest) error {
	query := `INSERT INTO copilot_requests (` + requestColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		req.ID, req.Scope, req.Domain, req.RiskLevel, req.Confidence, req.Status, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.RequestAlreadyExists(req.ID)
		}
		return fmt.Errorf("postgres: failed to create request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*domain.CopilotRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM copilot_requests WHERE id = $1`

	var r domain.CopilotRequest
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.Scope, &r.Domain, &r.RiskLevel, &r.Confidence, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.RequestNotFound(id)
		}
		return nil, fmt.Errorf("postgres: failed to get request: %w", err)
	}
	return &r, nil
}

// CompareAndSwapStatus: условный UPDATE: строка меняется, только если статус еще expected.
// Построчная блокировка Postgres сериализует конкурентов по одному запросу.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.RequestStatus, at time.Time) (bool, error) {
	return casStatus(ctx, s.db, id, expected, next, at)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func casStatus(ctx context.Context, db execer, id string, expected, next domain.RequestStatus, at time.Time) (bool, error) {
	query := `UPDATE copilot_requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := db.ExecContext(ctx, query, next, at, id, expected)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to update status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: rows affected: %w", err)
	}
	return rows == 1, nil
}
