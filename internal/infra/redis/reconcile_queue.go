package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"daily-leaderboard-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const reconcileKey = "lb:reconcile"

// ReconcileQueue parks rejected events in a Redis list for manual follow-up.
type ReconcileQueue struct {
	client *redis.Client
}

func NewReconcileQueue(client *redis.Client) *ReconcileQueue {
	return &ReconcileQueue{client: client}
}

func (q *ReconcileQueue) Push(ctx context.Context, rejected domain.RejectedEvent) error {
	payload, err := json.Marshal(rejected)
	if err != nil {
		return fmt.Errorf("marshal rejected event: %w", err)
	}
	return q.client.RPush(ctx, reconcileKey, payload).Err()
}

// List returns up to limit queued events, oldest first. limit <= 0 returns all.
func (q *ReconcileQueue) List(ctx context.Context, limit int) ([]domain.RejectedEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := q.client.LRange(ctx, reconcileKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.RejectedEvent, 0, len(raw))
	for _, item := range raw {
		var rejected domain.RejectedEvent
		if err := json.Unmarshal([]byte(item), &rejected); err != nil {
			return nil, fmt.Errorf("unmarshal rejected event: %w", err)
		}
		out = append(out, rejected)
	}
	return out, nil
}
