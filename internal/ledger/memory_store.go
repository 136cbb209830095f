package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/copilot-governance/internal/domain"
)

// InMemoryStore: реализация StatusStore, Storage, Finalizer и Enqueuer в памяти процесса.
// Используется в тестах и в режиме без базы (storage.driver=memory).
type InMemoryStore struct {
	mu sync.RWMutex

	requests  map[string]domain.CopilotRequest
	reviews   map[string]domain.HumanReview
	byRequest map[string][]string
	pending   map[string]domain.PendingReviewItem
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		requests:  make(map[string]domain.CopilotRequest),
		reviews:   make(map[string]domain.HumanReview),
		byRequest: make(map[string][]string),
		pending:   make(map[string]domain.PendingReviewItem),
	}
}

func (s *InMemoryStore) CreateRequest(_ context.Context, req *domain.CopilotRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return domain.RequestAlreadyExists(req.ID)
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *InMemoryStore) GetRequest(_ context.Context, id string) (*domain.CopilotRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, domain.RequestNotFound(id)
	}
	return &req, nil
}

func (s *InMemoryStore) CompareAndSwapStatus(_ context.Context, id string, expected, next domain.RequestStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casLocked(id, expected, next, at)
}

func (s *InMemoryStore) casLocked(id string, expected, next domain.RequestStatus, at time.Time) (bool, error) {
	req, ok := s.requests[id]
	if !ok {
		return false, domain.RequestNotFound(id)
	}
	if req.Status != expected {
		return false, nil
	}
	req.Status = next
	req.UpdatedAt = at
	s.requests[id] = req
	return true, nil
}

func (s *InMemoryStore) FinalizeReview(_ context.Context, review *domain.HumanReview, expected, next domain.RequestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.casLocked(review.RequestID, expected, next, review.ReviewedAt)
	if err != nil || !ok {
		return ok, err
	}
	s.saveReviewLocked(review)
	return true, nil
}

func (s *InMemoryStore) SaveReview(_ context.Context, review *domain.HumanReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveReviewLocked(review)
	return nil
}

func (s *InMemoryStore) saveReviewLocked(review *domain.HumanReview) {
	s.reviews[review.ID] = *review
	s.byRequest[review.RequestID] = append(s.byRequest[review.RequestID], review.ID)
	delete(s.pending, review.RequestID)
}

func (s *InMemoryStore) GetReview(_ context.Context, id string) (*domain.HumanReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, domain.ReviewNotFound(id)
	}
	return &r, nil
}

func (s *InMemoryStore) GetReviewsForRequest(_ context.Context, requestID string) ([]domain.HumanReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRequest[requestID]
	out := make([]domain.HumanReview, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.reviews[id])
	}
	return out, nil
}

func (s *InMemoryStore) EnqueueReview(_ context.Context, item domain.PendingReviewItem, expected domain.RequestStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.casLocked(item.RequestID, expected, domain.StatusAwaitingReview, at)
	if err != nil || !ok {
		return ok, err
	}
	s.pending[item.RequestID] = item
	return true, nil
}

func (s *InMemoryStore) SavePending(_ context.Context, item domain.PendingReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[item.RequestID] = item
	return nil
}

func (s *InMemoryStore) GetPending(_ context.Context, requestID string) (*domain.PendingReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.pending[requestID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *InMemoryStore) RemovePending(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, requestID)
	return nil
}

// GetPendingReviews: старые запросы первыми
func (s *InMemoryStore) GetPendingReviews(_ context.Context, scope string) ([]domain.PendingReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.PendingReviewItem{}
	for _, item := range s.pending {
		if scope != "" && item.Scope != scope {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) ListReviews(_ context.Context, scope string, start, end time.Time) ([]domain.HumanReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.HumanReview{}
	for _, r := range s.reviews {
		if scope != "" && r.Scope != scope {
			continue
		}
		if r.ReviewedAt.Before(start) || r.ReviewedAt.After(end) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewedAt.Before(out[j].ReviewedAt) })
	return out, nil
}
