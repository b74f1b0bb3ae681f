package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"daily-leaderboard-service/internal/domain"
	"daily-leaderboard-service/internal/scoring"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AggregateStore abstracts where daily aggregates live (in-memory, Redis, Postgres).
// Implementations serialize Update per (day, user) and remember applied event
// ids so a redelivered event returns domain.ErrDuplicateEvent without calling fn.
type AggregateStore interface {
	Update(ctx context.Context, day domain.DayKey, userID, eventID string, fn func(domain.DailyAggregate) domain.DailyAggregate) (domain.DailyAggregate, error)
	Get(ctx context.Context, day domain.DayKey, userID string) (domain.DailyAggregate, bool, error)
	ListDay(ctx context.Context, day domain.DayKey) ([]domain.DailyAggregate, error)
	Seen(ctx context.Context, day domain.DayKey, userID, eventID string) (bool, error)
}

// EventLedger is the append-only record of answer events.
type EventLedger interface {
	// Append records ev under day and reports whether it was new.
	Append(ctx context.Context, day domain.DayKey, ev domain.AnswerEvent) (bool, error)
	// ListDay returns the day's events in arrival order.
	ListDay(ctx context.Context, day domain.DayKey) ([]domain.AnswerEvent, error)
}

// IdentityLookup resolves display names.
type IdentityLookup interface {
	GetDisplayName(ctx context.Context, userID string) (string, error)
}

// ReconcileQueue parks rejected events for manual follow-up.
type ReconcileQueue interface {
	Push(ctx context.Context, rejected domain.RejectedEvent) error
	List(ctx context.Context, limit int) ([]domain.RejectedEvent, error)
}

const (
	defaultPlaceholderName   = "Anonymous"
	defaultLookupConcurrency = 8
)

// LeaderboardService contains the daily scoring and ranking use cases.
type LeaderboardService struct {
	store       AggregateStore
	ledger      EventLedger
	names       IdentityLookup
	reconcile   ReconcileQueue
	policy      scoring.DayPolicy
	now         func() time.Time
	logger      *zap.Logger
	placeholder string
	lookups     int
}

// Option customizes a LeaderboardService.
type Option func(*LeaderboardService)

// WithClock is mostly useful for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *LeaderboardService) { s.now = now }
}

// WithLogger replaces the default no-op logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(s *LeaderboardService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPlaceholderName sets the label shown when a display name cannot be resolved.
func WithPlaceholderName(name string) Option {
	return func(s *LeaderboardService) {
		if name != "" {
			s.placeholder = name
		}
	}
}

// WithLookupConcurrency bounds parallel identity lookups per leaderboard read.
func WithLookupConcurrency(n int) Option {
	return func(s *LeaderboardService) {
		if n > 0 {
			s.lookups = n
		}
	}
}

// WithReconcileQueue parks events rejected outside the writable window.
// Without one they are only logged.
func WithReconcileQueue(q ReconcileQueue) Option {
	return func(s *LeaderboardService) { s.reconcile = q }
}

// NewLeaderboardService wires the scoring use cases to their stores. names may
// be nil, in which case every entry shows the placeholder name.
func NewLeaderboardService(store AggregateStore, ledger EventLedger, names IdentityLookup, policy scoring.DayPolicy, opts ...Option) *LeaderboardService {
	s := &LeaderboardService{
		store:       store,
		ledger:      ledger,
		names:       names,
		policy:      policy,
		now:         time.Now,
		logger:      zap.NewNop(),
		placeholder: defaultPlaceholderName,
		lookups:     defaultLookupConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy exposes the day boundary policy for transports that parse day keys.
func (s *LeaderboardService) Policy() scoring.DayPolicy { return s.policy }

// Now is the service clock.
func (s *LeaderboardService) Now() time.Time { return s.now() }

// Today returns the currently active day key.
func (s *LeaderboardService) Today() domain.DayKey { return s.policy.Today(s.now()) }

// ApplyEvent ingests one answer. Redelivery of an applied event is reported
// as a successful result with Duplicate set.
func (s *LeaderboardService) ApplyEvent(ctx context.Context, ev domain.AnswerEvent) (domain.ApplyResult, error) {
	if err := ev.Validate(); err != nil {
		return domain.ApplyResult{}, err
	}
	ev.EventID = ev.Identity()
	day := s.policy.DayKeyOf(ev.AnsweredAt)

	if err := s.policy.CheckWritable(ev.AnsweredAt, s.now()); err != nil {
		return s.rejectOrDuplicate(ctx, day, ev, err)
	}

	if _, err := s.ledger.Append(ctx, day, ev); err != nil {
		return domain.ApplyResult{}, transient("append to ledger", err)
	}

	var awarded int
	agg, err := s.store.Update(ctx, day, ev.UserID, ev.EventID, func(current domain.DailyAggregate) domain.DailyAggregate {
		next, delta := scoring.Apply(current, ev)
		awarded = delta
		return next
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		s.logger.Debug("duplicate answer event ignored", zap.String("event_id", ev.EventID), zap.String("user_id", ev.UserID))
		return domain.ApplyResult{EventID: ev.EventID, Duplicate: true, Aggregate: agg}, nil
	}
	if err != nil {
		return domain.ApplyResult{}, transient("update aggregate", err)
	}

	s.logger.Debug("answer event applied",
		zap.String("event_id", ev.EventID),
		zap.String("user_id", ev.UserID),
		zap.String("day", day.String()),
		zap.Int("awarded", awarded),
		zap.Int("score", agg.Score),
		zap.Int("streak", agg.CurrentStreak),
	)
	return domain.ApplyResult{EventID: ev.EventID, Awarded: awarded, Aggregate: agg}, nil
}

// rejectOrDuplicate handles an event outside the writable window. Events that
// were applied before the window closed stay a no-op; the rest are parked.
func (s *LeaderboardService) rejectOrDuplicate(ctx context.Context, day domain.DayKey, ev domain.AnswerEvent, cause error) (domain.ApplyResult, error) {
	if seen, err := s.store.Seen(ctx, day, ev.UserID, ev.EventID); err == nil && seen {
		agg, _, _ := s.store.Get(ctx, day, ev.UserID)
		return domain.ApplyResult{EventID: ev.EventID, Duplicate: true, Aggregate: agg}, nil
	}

	s.logger.Warn("answer event rejected",
		zap.String("event_id", ev.EventID),
		zap.String("user_id", ev.UserID),
		zap.String("day", day.String()),
		zap.Error(cause),
	)
	if s.reconcile != nil {
		rejected := domain.RejectedEvent{Event: ev, Reason: cause.Error(), RejectedAt: s.now().UTC()}
		if err := s.reconcile.Push(ctx, rejected); err != nil {
			s.logger.Error("failed to queue rejected event", zap.String("event_id", ev.EventID), zap.Error(err))
		}
	}
	return domain.ApplyResult{}, cause
}

// GetAggregate returns the user's aggregate for day. A user who did not play
// gets a zero-valued aggregate, not an error.
func (s *LeaderboardService) GetAggregate(ctx context.Context, userID string, day domain.DayKey) (domain.DailyAggregate, error) {
	agg, ok, err := s.store.Get(ctx, day, userID)
	if err != nil {
		return domain.DailyAggregate{}, transient("get aggregate", err)
	}
	if !ok {
		return domain.DailyAggregate{UserID: userID, DayKey: day}, nil
	}
	return agg, nil
}

// GetDailyLeaderboard ranks every participant of day. limit <= 0 returns all entries.
func (s *LeaderboardService) GetDailyLeaderboard(ctx context.Context, day domain.DayKey, limit int) (domain.LeaderboardResponse, error) {
	aggs, err := s.store.ListDay(ctx, day)
	if err != nil {
		return domain.LeaderboardResponse{}, transient("list aggregates", err)
	}

	entries := scoring.Rank(aggs)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	s.attachNames(ctx, entries)

	return domain.LeaderboardResponse{Date: day, Leaderboard: entries}, nil
}

// GetUserStanding returns the ranked entry of one user, or false if the user
// did not participate on day.
func (s *LeaderboardService) GetUserStanding(ctx context.Context, userID string, day domain.DayKey) (domain.LeaderboardEntry, bool, error) {
	aggs, err := s.store.ListDay(ctx, day)
	if err != nil {
		return domain.LeaderboardEntry{}, false, transient("list aggregates", err)
	}
	for _, entry := range scoring.Rank(aggs) {
		if entry.UserID == userID {
			one := []domain.LeaderboardEntry{entry}
			s.attachNames(ctx, one)
			return one[0], true, nil
		}
	}
	return domain.LeaderboardEntry{}, false, nil
}

// attachNames resolves display names concurrently. A failed lookup only
// affects its own entry.
func (s *LeaderboardService) attachNames(ctx context.Context, entries []domain.LeaderboardEntry) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.lookups)
	for i := range entries {
		i := i
		g.Go(func() error {
			entries[i].UserName = s.displayName(gctx, entries[i].UserID)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *LeaderboardService) displayName(ctx context.Context, userID string) string {
	if s.names == nil {
		return s.placeholder
	}
	name, err := s.names.GetDisplayName(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Warn("display name lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return s.placeholder
	}
	if name == "" {
		return s.placeholder
	}
	return name
}

// ReplayDay rebuilds the day's aggregates from the ledger alone, folding
// events in arrival order through the same scoring rules the store uses.
func (s *LeaderboardService) ReplayDay(ctx context.Context, day domain.DayKey) ([]domain.DailyAggregate, error) {
	events, err := s.ledger.ListDay(ctx, day)
	if err != nil {
		return nil, transient("list ledger", err)
	}

	applied := make(map[string]struct{}, len(events))
	byUser := make(map[string]domain.DailyAggregate)
	for _, ev := range events {
		id := ev.Identity()
		if _, dup := applied[id]; dup {
			continue
		}
		applied[id] = struct{}{}
		agg, ok := byUser[ev.UserID]
		if !ok {
			agg = domain.DailyAggregate{UserID: ev.UserID, DayKey: day}
		}
		agg, _ = scoring.Apply(agg, ev)
		byUser[ev.UserID] = agg
	}

	out := make([]domain.DailyAggregate, 0, len(byUser))
	for _, agg := range byUser {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Drift describes a user whose stored aggregate disagrees with the ledger.
type Drift struct {
	UserID   string                `json:"user_id"`
	Stored   domain.DailyAggregate `json:"stored"`
	Replayed domain.DailyAggregate `json:"replayed"`
}

// VerifyDay compares stored aggregates with a ledger replay.
func (s *LeaderboardService) VerifyDay(ctx context.Context, day domain.DayKey) ([]Drift, error) {
	replayed, err := s.ReplayDay(ctx, day)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.ListDay(ctx, day)
	if err != nil {
		return nil, transient("list aggregates", err)
	}

	storedByUser := make(map[string]domain.DailyAggregate, len(stored))
	for _, agg := range stored {
		storedByUser[agg.UserID] = agg
	}

	var drifts []Drift
	for _, want := range replayed {
		got := storedByUser[want.UserID]
		delete(storedByUser, want.UserID)
		if !sameCounters(got, want) {
			drifts = append(drifts, Drift{UserID: want.UserID, Stored: got, Replayed: want})
		}
	}
	for userID, got := range storedByUser {
		drifts = append(drifts, Drift{UserID: userID, Stored: got})
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].UserID < drifts[j].UserID })
	return drifts, nil
}

// PendingRejections lists events parked for reconciliation.
func (s *LeaderboardService) PendingRejections(ctx context.Context, limit int) ([]domain.RejectedEvent, error) {
	if s.reconcile == nil {
		return nil, nil
	}
	return s.reconcile.List(ctx, limit)
}

func sameCounters(a, b domain.DailyAggregate) bool {
	return a.Score == b.Score &&
		a.CurrentStreak == b.CurrentStreak &&
		a.MaxStreak == b.MaxStreak &&
		a.QuestionsAnswered == b.QuestionsAnswered &&
		a.CorrectAnswers == b.CorrectAnswers &&
		a.LastScoredAt.Equal(b.LastScoredAt)
}

func transient(op string, err error) error {
	if errors.Is(err, domain.ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrTransient, op, err)
}
