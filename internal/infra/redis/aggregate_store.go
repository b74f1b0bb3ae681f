package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"daily-leaderboard-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 16

// AggregateStore keeps daily aggregates in Redis.
//   - HSET lb:agg:{day}:{user}      aggregate counters
//   - SADD lb:applied:{day}:{user}  applied event ids (dedupe window)
//   - SADD lb:day:{day}:users       participants of the day
//
// Each key kind has its own prefix and the user id is always the last
// segment, so no user id can address another user's keys.
//
// Updates run as WATCH/MULTI transactions on the aggregate and its event set,
// so concurrent writers for one user retry instead of losing increments.
type AggregateStore struct {
	client    *redis.Client
	dedupeTTL time.Duration
	retention time.Duration
}

// NewAggregateStore builds a store. dedupeTTL bounds how long applied event ids
// are remembered; retention bounds how long a day's aggregates are kept. Zero
// disables expiry.
func NewAggregateStore(client *redis.Client, dedupeTTL, retention time.Duration) *AggregateStore {
	return &AggregateStore{
		client:    client,
		dedupeTTL: dedupeTTL,
		retention: retention,
	}
}

func (s *AggregateStore) Update(ctx context.Context, day domain.DayKey, userID, eventID string, fn func(domain.DailyAggregate) domain.DailyAggregate) (domain.DailyAggregate, error) {
	aggKey := s.aggKey(day, userID)
	appliedKey := s.appliedKey(day, userID)
	dayKey := s.dayKey(day)

	var result domain.DailyAggregate
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, aggKey).Result()
		if err != nil {
			return err
		}
		current, err := decodeAggregate(day, userID, fields)
		if err != nil {
			return err
		}

		seen, err := tx.SIsMember(ctx, appliedKey, eventID).Result()
		if err != nil {
			return err
		}
		if seen {
			result = current
			return domain.ErrDuplicateEvent
		}

		next := fn(current)
		next.UserID = userID
		next.DayKey = day

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, aggKey, encodeAggregate(next))
			pipe.SAdd(ctx, appliedKey, eventID)
			pipe.SAdd(ctx, dayKey, userID)
			if s.dedupeTTL > 0 {
				pipe.Expire(ctx, appliedKey, s.dedupeTTL)
			}
			if s.retention > 0 {
				pipe.Expire(ctx, aggKey, s.retention)
				pipe.Expire(ctx, dayKey, s.retention)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, aggKey, appliedKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return domain.DailyAggregate{}, fmt.Errorf("update %s: too much contention", aggKey)
}

func (s *AggregateStore) Get(ctx context.Context, day domain.DayKey, userID string) (domain.DailyAggregate, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.aggKey(day, userID)).Result()
	if err != nil {
		return domain.DailyAggregate{}, false, err
	}
	if len(fields) == 0 {
		return domain.DailyAggregate{}, false, nil
	}
	agg, err := decodeAggregate(day, userID, fields)
	return agg, err == nil, err
}

func (s *AggregateStore) Seen(ctx context.Context, day domain.DayKey, userID, eventID string) (bool, error) {
	return s.client.SIsMember(ctx, s.appliedKey(day, userID), eventID).Result()
}

// ListDay reads every participant's hash in one pipeline. Each HGETALL is
// atomic, so no aggregate is observed half-updated.
func (s *AggregateStore) ListDay(ctx context.Context, day domain.DayKey) ([]domain.DailyAggregate, error) {
	users, err := s.client.SMembers(ctx, s.dayKey(day)).Result()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(users))
	for i, userID := range users {
		cmds[i] = pipe.HGetAll(ctx, s.aggKey(day, userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.DailyAggregate, 0, len(users))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// expired between SMEMBERS and HGETALL
			continue
		}
		agg, err := decodeAggregate(day, users[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

func (s *AggregateStore) aggKey(day domain.DayKey, userID string) string {
	return "lb:agg:" + string(day) + ":" + userID
}

func (s *AggregateStore) appliedKey(day domain.DayKey, userID string) string {
	return "lb:applied:" + string(day) + ":" + userID
}

func (s *AggregateStore) dayKey(day domain.DayKey) string {
	return "lb:day:" + string(day) + ":users"
}

func encodeAggregate(agg domain.DailyAggregate) map[string]interface{} {
	var scoredAt int64
	if !agg.LastScoredAt.IsZero() {
		scoredAt = agg.LastScoredAt.UnixNano()
	}
	return map[string]interface{}{
		"score":              agg.Score,
		"current_streak":     agg.CurrentStreak,
		"max_streak":         agg.MaxStreak,
		"questions_answered": agg.QuestionsAnswered,
		"correct_answers":    agg.CorrectAnswers,
		"last_scored_at":     scoredAt,
	}
}

func decodeAggregate(day domain.DayKey, userID string, fields map[string]string) (domain.DailyAggregate, error) {
	agg := domain.DailyAggregate{UserID: userID, DayKey: day}
	ints := []struct {
		name string
		dst  *int
	}{
		{"score", &agg.Score},
		{"current_streak", &agg.CurrentStreak},
		{"max_streak", &agg.MaxStreak},
		{"questions_answered", &agg.QuestionsAnswered},
		{"correct_answers", &agg.CorrectAnswers},
	}
	for _, f := range ints {
		raw, ok := fields[f.name]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return domain.DailyAggregate{}, fmt.Errorf("decode %s for %s/%s: %w", f.name, day, userID, err)
		}
		*f.dst = v
	}
	if raw, ok := fields["last_scored_at"]; ok && raw != "0" {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.DailyAggregate{}, fmt.Errorf("decode last_scored_at for %s/%s: %w", day, userID, err)
		}
		agg.LastScoredAt = time.Unix(0, nanos).UTC()
	}
	return agg, nil
}
