package ledger

import (
	"context"
	"time"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

// StatusStore: хранилище статусов запросов с compare-and-swap.
// Именно CAS по ожидаемому статусу обеспечивает монотонность переходов
// и единственного победителя среди конкурирующих ревьюеров.
type StatusStore interface {
	CreateRequest(ctx context.Context, req *domain.CopilotRequest) error
	// GetRequest возвращает domain.ErrRequestNotFound для неизвестного id
	GetRequest(ctx context.Context, id string) (*domain.CopilotRequest, error)
	// CompareAndSwapStatus меняет статус, только если текущий равен expected.
	// false без ошибки: статус уже другой.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.RequestStatus, at time.Time) (bool, error)
}

// Storage: контракт хранилища ревью и очереди ожидания.
type Storage interface {
	// SaveReview сохраняет ревью и удаляет pending-проекцию его запроса одной операцией
	SaveReview(ctx context.Context, review *domain.HumanReview) error
	// GetReview возвращает domain.ErrReviewNotFound для неизвестного id
	GetReview(ctx context.Context, id string) (*domain.HumanReview, error)
	GetReviewsForRequest(ctx context.Context, requestID string) ([]domain.HumanReview, error)

	SavePending(ctx context.Context, item domain.PendingReviewItem) error
	// GetPending возвращает nil, nil если элемента нет
	GetPending(ctx context.Context, requestID string) (*domain.PendingReviewItem, error)
	RemovePending(ctx context.Context, requestID string) error
	// GetPendingReviews: пустой scope означает все тенанты
	GetPendingReviews(ctx context.Context, scope string) ([]domain.PendingReviewItem, error)

	// ListReviews: ревью с ReviewedAt в [start, end]
	ListReviews(ctx context.Context, scope string, start, end time.Time) ([]domain.HumanReview, error)
}

// Finalizer: опциональная возможность бэкенда зафиксировать ревью атомарно:
// CAS статуса, запись ревью и удаление pending в одной транзакции.
// false без ошибки: статус уже не expected, ничего не записано.
type Finalizer interface {
	FinalizeReview(ctx context.Context, review *domain.HumanReview, expected, next domain.RequestStatus) (bool, error)
}

// Enqueuer: опциональная возможность бэкенда поставить запрос в очередь атомарно:
// CAS expected -> AWAITING_REVIEW и запись pending в одной транзакции.
// false без ошибки: статус уже не expected, ничего не записано.
type Enqueuer interface {
	EnqueueReview(ctx context.Context, item domain.PendingReviewItem, expected domain.RequestStatus, at time.Time) (bool, error)
}
