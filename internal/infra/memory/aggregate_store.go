package memory

import (
	"context"
	"sort"
	"sync"

	"daily-leaderboard-service/internal/domain"
)

// AggregateStore is an in-memory implementation of app.AggregateStore.
// Aggregates are partitioned by day; each (day, user) entry carries its own
// mutex so writers for different users never contend.
type AggregateStore struct {
	mu   sync.RWMutex
	days map[domain.DayKey]*dayPartition
}

type dayPartition struct {
	mu      sync.RWMutex
	entries map[string]*aggregateEntry
}

type aggregateEntry struct {
	mu      sync.Mutex
	agg     domain.DailyAggregate
	applied map[string]struct{}
}

func NewAggregateStore() *AggregateStore {
	return &AggregateStore{
		days: make(map[domain.DayKey]*dayPartition),
	}
}

func (s *AggregateStore) Update(_ context.Context, day domain.DayKey, userID, eventID string, fn func(domain.DailyAggregate) domain.DailyAggregate) (domain.DailyAggregate, error) {
	entry := s.partitionFor(day).getOrCreate(day, userID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if _, ok := entry.applied[eventID]; ok {
		return entry.agg, domain.ErrDuplicateEvent
	}
	next := fn(entry.agg)
	next.UserID = userID
	next.DayKey = day
	entry.agg = next
	entry.applied[eventID] = struct{}{}
	return next, nil
}

func (s *AggregateStore) Get(_ context.Context, day domain.DayKey, userID string) (domain.DailyAggregate, bool, error) {
	entry, ok := s.lookup(day, userID)
	if !ok {
		return domain.DailyAggregate{}, false, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.agg, true, nil
}

func (s *AggregateStore) Seen(_ context.Context, day domain.DayKey, userID, eventID string) (bool, error) {
	entry, ok := s.lookup(day, userID)
	if !ok {
		return false, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	_, seen := entry.applied[eventID]
	return seen, nil
}

// ListDay snapshots every aggregate of day. Each aggregate is copied under its
// own lock; different users may be captured at slightly different moments.
func (s *AggregateStore) ListDay(_ context.Context, day domain.DayKey) ([]domain.DailyAggregate, error) {
	s.mu.RLock()
	partition, ok := s.days[day]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	partition.mu.RLock()
	entries := make([]*aggregateEntry, 0, len(partition.entries))
	for _, entry := range partition.entries {
		entries = append(entries, entry)
	}
	partition.mu.RUnlock()

	out := make([]domain.DailyAggregate, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		out = append(out, entry.agg)
		entry.mu.Unlock()
	}
	return out, nil
}

// Days lists the partitions currently held, oldest first.
func (s *AggregateStore) Days() []domain.DayKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	days := make([]domain.DayKey, 0, len(s.days))
	for day := range s.days {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// DeleteBefore drops partitions older than day and returns how many were removed.
func (s *AggregateStore) DeleteBefore(_ context.Context, day domain.DayKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key := range s.days {
		// ISO dates order lexically.
		if key < day {
			delete(s.days, key)
			removed++
		}
	}
	return removed, nil
}

func (s *AggregateStore) partitionFor(day domain.DayKey) *dayPartition {
	s.mu.RLock()
	partition, ok := s.days[day]
	s.mu.RUnlock()
	if ok {
		return partition
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if partition, ok := s.days[day]; ok {
		return partition
	}
	partition = &dayPartition{entries: make(map[string]*aggregateEntry)}
	s.days[day] = partition
	return partition
}

func (s *AggregateStore) lookup(day domain.DayKey, userID string) (*aggregateEntry, bool) {
	s.mu.RLock()
	partition, ok := s.days[day]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	partition.mu.RLock()
	defer partition.mu.RUnlock()
	entry, ok := partition.entries[userID]
	return entry, ok
}

func (p *dayPartition) getOrCreate(day domain.DayKey, userID string) *aggregateEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.entries[userID]; ok {
		return entry
	}
	entry := &aggregateEntry{
		agg:     domain.DailyAggregate{UserID: userID, DayKey: day},
		applied: make(map[string]struct{}),
	}
	p.entries[userID] = entry
	return entry
}
