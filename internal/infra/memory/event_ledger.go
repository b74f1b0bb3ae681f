package memory

import (
	"context"
	"sync"

	"daily-leaderboard-service/internal/domain"
)

// EventLedger is an append-only, in-process answer log.
type EventLedger struct {
	mu     sync.RWMutex
	events map[domain.DayKey][]domain.AnswerEvent
	ids    map[string]struct{}
}

func NewEventLedger() *EventLedger {
	return &EventLedger{
		events: make(map[domain.DayKey][]domain.AnswerEvent),
		ids:    make(map[string]struct{}),
	}
}

func (l *EventLedger) Append(_ context.Context, day domain.DayKey, ev domain.AnswerEvent) (bool, error) {
	id := ev.Identity()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[id]; ok {
		return false, nil
	}
	ev.EventID = id
	l.ids[id] = struct{}{}
	l.events[day] = append(l.events[day], ev)
	return true, nil
}

func (l *EventLedger) ListDay(_ context.Context, day domain.DayKey) ([]domain.AnswerEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.AnswerEvent(nil), l.events[day]...), nil
}
