package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"daily-leaderboard-service/internal/app"
	"daily-leaderboard-service/internal/domain"
	"daily-leaderboard-service/internal/infra/memory"
	"daily-leaderboard-service/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2026, 4, 20, 8, 0, 0, 0, time.UTC)

type fixture struct {
	service   *app.LeaderboardService
	store     *memory.AggregateStore
	reconcile *memory.ReconcileQueue
	now       time.Time
}

func newFixture(t *testing.T, names app.IdentityLookup) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewAggregateStore(),
		reconcile: memory.NewReconcileQueue(),
		now:       day0.Add(12 * time.Hour),
	}
	if names == nil {
		names = memory.NewStaticDirectory(map[string]string{
			"A": "Ada",
			"B": "Boyle",
			"C": "Curie",
		})
	}
	f.service = app.NewLeaderboardService(
		f.store,
		memory.NewEventLedger(),
		names,
		scoring.NewDayPolicy(0, 10*time.Minute),
		app.WithClock(func() time.Time { return f.now }),
		app.WithReconcileQueue(f.reconcile),
	)
	return f
}

func answer(user string, i int, correct bool) domain.AnswerEvent {
	return domain.AnswerEvent{
		EventID:    fmt.Sprintf("%s-%d", user, i),
		UserID:     user,
		QuestionID: fmt.Sprintf("q%d", i),
		IsCorrect:  correct,
		AnsweredAt: day0.Add(time.Duration(i) * time.Minute),
	}
}

func play(t *testing.T, s *app.LeaderboardService, user string, answers ...bool) {
	t.Helper()
	for i, correct := range answers {
		_, err := s.ApplyEvent(context.Background(), answer(user, i, correct))
		require.NoError(t, err)
	}
}

func TestApplyEventScenarioMixed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	wantStreak := []int{1, 2, 0, 1, 2}
	wantAwarded := []int{10, 10, 0, 10, 10}
	for i, correct := range []bool{true, true, false, true, true} {
		res, err := f.service.ApplyEvent(ctx, answer("A", i, correct))
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, wantStreak[i], res.Aggregate.CurrentStreak)
		assert.Equal(t, wantAwarded[i], res.Awarded)
	}

	agg, err := f.service.GetAggregate(ctx, "A", "2026-04-20")
	require.NoError(t, err)
	assert.Equal(t, 40, agg.Score)
	assert.Equal(t, 2, agg.MaxStreak)
	assert.Equal(t, 5, agg.QuestionsAnswered)
	assert.Equal(t, 4, agg.CorrectAnswers)

	lb, err := f.service.GetDailyLeaderboard(ctx, "2026-04-20", 0)
	require.NoError(t, err)
	require.Len(t, lb.Leaderboard, 1)
	assert.Equal(t, 80.0, lb.Leaderboard[0].AccuracyPercentage)
	assert.Equal(t, "Ada", lb.Leaderboard[0].UserName)
}

func TestApplyEventTenInARow(t *testing.T) {
	f := newFixture(t, nil)
	play(t, f.service, "B", true, true, true, true, true, true, true, true, true, true)

	agg, err := f.service.GetAggregate(context.Background(), "B", "2026-04-20")
	require.NoError(t, err)
	assert.Equal(t, 115, agg.Score)
	assert.Equal(t, 10, agg.MaxStreak)
}

func TestLeaderboardOrdersByScore(t *testing.T) {
	f := newFixture(t, nil)
	play(t, f.service, "A", true, true, false, true, true)
	play(t, f.service, "C", true, true, true, false, true)

	lb, err := f.service.GetDailyLeaderboard(context.Background(), "2026-04-20", 0)
	require.NoError(t, err)
	require.Len(t, lb.Leaderboard, 2)
	assert.Equal(t, domain.DayKey("2026-04-20"), lb.Date)

	assert.Equal(t, "C", lb.Leaderboard[0].UserID)
	assert.Equal(t, 41, lb.Leaderboard[0].DailyScore)
	assert.Equal(t, 1, lb.Leaderboard[0].Rank)
	assert.Equal(t, "A", lb.Leaderboard[1].UserID)
	assert.Equal(t, 2, lb.Leaderboard[1].Rank)
}

func TestLeaderboardEqualScoreOrderedByStreak(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	play(t, f.service, "A", true, true, false, true, true)

	// 40 points with a best streak of 3 cannot be reached through answers (the
	// third correct in a row earns 11), so seed C's aggregate directly.
	_, err := f.store.Update(ctx, "2026-04-20", "C", "seed", func(agg domain.DailyAggregate) domain.DailyAggregate {
		agg.Score, agg.MaxStreak, agg.QuestionsAnswered, agg.CorrectAnswers = 40, 3, 6, 4
		agg.LastScoredAt = day0.Add(time.Hour)
		return agg
	})
	require.NoError(t, err)

	lb, err := f.service.GetDailyLeaderboard(ctx, "2026-04-20", 0)
	require.NoError(t, err)
	require.Len(t, lb.Leaderboard, 2)
	assert.Equal(t, "C", lb.Leaderboard[0].UserID)
	assert.Equal(t, "A", lb.Leaderboard[1].UserID)
}

func TestApplyEventIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ev := answer("A", 0, true)
	first, err := f.service.ApplyEvent(ctx, ev)
	require.NoError(t, err)

	second, err := f.service.ApplyEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 0, second.Awarded)
	assert.Equal(t, first.Aggregate, second.Aggregate)

	// Events without an explicit id deduplicate on their derived identity.
	anon := answer("A", 1, true)
	anon.EventID = ""
	_, err = f.service.ApplyEvent(ctx, anon)
	require.NoError(t, err)
	res, err := f.service.ApplyEvent(ctx, anon)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	agg, _ := f.service.GetAggregate(ctx, "A", "2026-04-20")
	assert.Equal(t, 2, agg.QuestionsAnswered)
	assert.Equal(t, 20, agg.Score)
}

func TestApplyEventOutOfOrderLeavesFrozenDayUntouched(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	play(t, f.service, "A", true, true)

	// Next day, well past the grace window.
	f.now = day0.Add(30 * time.Hour)
	late := answer("A", 7, true)

	_, err := f.service.ApplyEvent(ctx, late)
	require.ErrorIs(t, err, domain.ErrOutOfOrderEvent)

	agg, err := f.service.GetAggregate(ctx, "A", "2026-04-20")
	require.NoError(t, err)
	assert.Equal(t, 20, agg.Score)
	assert.Equal(t, 2, agg.QuestionsAnswered)

	pending, err := f.service.PendingRejections(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, late.EventID, pending[0].Event.EventID)

	// Redelivery of an event that was applied before the day froze stays a no-op.
	res, err := f.service.ApplyEvent(ctx, answer("A", 1, true))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestApplyEventWithinGraceAfterRollover(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.now = time.Date(2026, 4, 21, 0, 3, 0, 0, time.UTC)
	ev := domain.AnswerEvent{EventID: "late", UserID: "A", QuestionID: "q", IsCorrect: true, AnsweredAt: time.Date(2026, 4, 20, 23, 58, 0, 0, time.UTC)}
	res, err := f.service.ApplyEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, domain.DayKey("2026-04-20"), res.Aggregate.DayKey)
	assert.Equal(t, domain.DayKey("2026-04-21"), f.service.Today())
}

func TestApplyEventRejectsInvalid(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.ApplyEvent(context.Background(), domain.AnswerEvent{QuestionID: "q", AnsweredAt: day0})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestGetAggregateAbsentIsZero(t *testing.T) {
	f := newFixture(t, nil)
	agg, err := f.service.GetAggregate(context.Background(), "nobody", "2026-04-20")
	require.NoError(t, err)
	assert.Equal(t, domain.DailyAggregate{UserID: "nobody", DayKey: "2026-04-20"}, agg)
}

type flakyNames struct{}

func (flakyNames) GetDisplayName(_ context.Context, userID string) (string, error) {
	if userID == "B" {
		return "", errors.New("profile store timeout")
	}
	return "User " + userID, nil
}

func TestLeaderboardDegradesOnLookupFailure(t *testing.T) {
	f := newFixture(t, flakyNames{})
	play(t, f.service, "A", true)
	play(t, f.service, "B", true, true)

	lb, err := f.service.GetDailyLeaderboard(context.Background(), "2026-04-20", 0)
	require.NoError(t, err)
	require.Len(t, lb.Leaderboard, 2)
	assert.Equal(t, "Anonymous", lb.Leaderboard[0].UserName)
	assert.Equal(t, "User A", lb.Leaderboard[1].UserName)
}

func TestLeaderboardLimitAndStanding(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	play(t, f.service, "A", true)
	play(t, f.service, "B", true, true)
	play(t, f.service, "C", true, true, true)

	lb, err := f.service.GetDailyLeaderboard(ctx, "2026-04-20", 2)
	require.NoError(t, err)
	require.Len(t, lb.Leaderboard, 2)
	assert.Equal(t, "C", lb.Leaderboard[0].UserID)

	entry, ok, err := f.service.GetUserStanding(ctx, "A", "2026-04-20")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, entry.Rank)
	assert.Equal(t, "Ada", entry.UserName)

	_, ok, err = f.service.GetUserStanding(ctx, "nobody", "2026-04-20")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaderboardEmptyDay(t *testing.T) {
	f := newFixture(t, nil)
	lb, err := f.service.GetDailyLeaderboard(context.Background(), "2026-04-19", 0)
	require.NoError(t, err)
	assert.Empty(t, lb.Leaderboard)
}

func TestReplayMatchesStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, user := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for i := 0; i < 12; i++ {
				_, _ = f.service.ApplyEvent(ctx, answer(user, i, i%4 != 3))
			}
		}(user)
	}
	wg.Wait()

	drifts, err := f.service.VerifyDay(ctx, "2026-04-20")
	require.NoError(t, err)
	assert.Empty(t, drifts)

	replayed, err := f.service.ReplayDay(ctx, "2026-04-20")
	require.NoError(t, err)
	require.Len(t, replayed, 3)
	assert.Equal(t, "A", replayed[0].UserID)
	assert.Equal(t, 12, replayed[0].QuestionsAnswered)
}

func TestVerifyDetectsDrift(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	play(t, f.service, "A", true)

	_, err := f.store.Update(ctx, "2026-04-20", "A", "tamper", func(agg domain.DailyAggregate) domain.DailyAggregate {
		agg.Score += 100
		return agg
	})
	require.NoError(t, err)

	drifts, err := f.service.VerifyDay(ctx, "2026-04-20")
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, 110, drifts[0].Stored.Score)
	assert.Equal(t, 10, drifts[0].Replayed.Score)
}
