package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"daily-leaderboard-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// appendScript adds an event to the day's stream only if its id is new.
// KEYS[1] stream, KEYS[2] id set; ARGV[1] event id, ARGV[2] payload.
var appendScript = redis.NewScript(`
if redis.call("SADD", KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call("XADD", KEYS[1], "*", "event", ARGV[2])
return 1
`)

// EventLedger stores answer events in one Redis stream per day:
//   - XADD lb:ledger:{day} * event {json}
//   - SADD lb:ledger:{day}:ids {eventID}
type EventLedger struct {
	client    *redis.Client
	retention time.Duration
}

func NewEventLedger(client *redis.Client, retention time.Duration) *EventLedger {
	return &EventLedger{client: client, retention: retention}
}

func (l *EventLedger) Append(ctx context.Context, day domain.DayKey, ev domain.AnswerEvent) (bool, error) {
	ev.EventID = ev.Identity()
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("marshal event: %w", err)
	}

	streamKey, idsKey := l.streamKey(day), l.idsKey(day)
	added, err := appendScript.Run(ctx, l.client, []string{streamKey, idsKey}, ev.EventID, payload).Int()
	if err != nil {
		return false, fmt.Errorf("append event %s: %w", ev.EventID, err)
	}
	if added == 1 && l.retention > 0 {
		pipe := l.client.Pipeline()
		pipe.Expire(ctx, streamKey, l.retention)
		pipe.Expire(ctx, idsKey, l.retention)
		_, _ = pipe.Exec(ctx)
	}
	return added == 1, nil
}

func (l *EventLedger) ListDay(ctx context.Context, day domain.DayKey) ([]domain.AnswerEvent, error) {
	msgs, err := l.client.XRange(ctx, l.streamKey(day), "-", "+").Result()
	if err != nil {
		return nil, err
	}
	events := make([]domain.AnswerEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			return nil, fmt.Errorf("ledger entry %s has no event payload", msg.ID)
		}
		var ev domain.AnswerEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal ledger entry %s: %w", msg.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (l *EventLedger) streamKey(day domain.DayKey) string {
	return "lb:ledger:" + string(day)
}

func (l *EventLedger) idsKey(day domain.DayKey) string {
	return l.streamKey(day) + ":ids"
}
