package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]AuditEvent
	err     error
}

func (m *memStorage) WriteBatch(_ context.Context, events []AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, events)
	return m.err
}

func (m *memStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestTrail_StopFlushesEverything(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, Config{FlushInterval: time.Hour, BatchSize: 7}, zap.NewNop())
	trail.Start()

	for i := 0; i < 50; i++ {
		trail.Log(AuditEvent{Action: ActionReviewSubmitted})
	}
	trail.Stop()

	assert.Equal(t, 50, store.total())
	for _, b := range store.batches {
		assert.LessOrEqual(t, len(b), 7)
	}
}

func TestTrail_FlushesOnTimer(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, Config{FlushInterval: 10 * time.Millisecond}, zap.NewNop())
	trail.Start()
	defer trail.Stop()

	trail.Log(AuditEvent{Action: ActionPolicyDecision})

	require.Eventually(t, func() bool { return store.total() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, store.batches[0][0].Timestamp.IsZero())
}

func TestTrail_LogAfterStopIsDropped(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, Config{}, zap.NewNop())
	trail.Start()
	trail.Stop()

	assert.NotPanics(t, func() { trail.Log(AuditEvent{Action: ActionStatusChanged}) })
	assert.NotPanics(t, trail.Stop)
	assert.Zero(t, store.total())
}

func TestTrail_OverflowDoesNotBlock(t *testing.T) {
	store := &memStorage{}
	// Воркер не запущен: буфер на 2 события
	trail := NewTrail(store, Config{BufferSize: 2}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			trail.Log(AuditEvent{Action: ActionReviewRequested})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
	assert.Equal(t, 2, trail.Pending())
}

func TestTrail_StorageErrorIsLoggedNotFatal(t *testing.T) {
	store := &memStorage{err: errors.New("db down")}
	trail := NewTrail(store, Config{}, zap.NewNop())
	trail.Start()
	trail.Log(AuditEvent{Action: ActionPolicyUpdated})
	trail.Stop()

	assert.Equal(t, 1, store.total())
}
