package memory

import (
	"context"
	"sync"

	"daily-leaderboard-service/internal/domain"
)

// ReconcileQueue keeps rejected events in process memory.
type ReconcileQueue struct {
	mu       sync.Mutex
	rejected []domain.RejectedEvent
}

func NewReconcileQueue() *ReconcileQueue {
	return &ReconcileQueue{}
}

func (q *ReconcileQueue) Push(_ context.Context, rejected domain.RejectedEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rejected = append(q.rejected, rejected)
	return nil
}

// List returns up to limit queued events, oldest first. limit <= 0 returns all.
func (q *ReconcileQueue) List(_ context.Context, limit int) ([]domain.RejectedEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.rejected)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]domain.RejectedEvent(nil), q.rejected[:n]...), nil
}
