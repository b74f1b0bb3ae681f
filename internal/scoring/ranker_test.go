package scoring

import (
	"math/rand"
	"testing"
	"time"

	"daily-leaderboard-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankStreakTieBreak(t *testing.T) {
	aggs := []domain.DailyAggregate{
		{UserID: "A", Score: 40, MaxStreak: 2, QuestionsAnswered: 5, CorrectAnswers: 4},
		{UserID: "C", Score: 40, MaxStreak: 3, QuestionsAnswered: 4, CorrectAnswers: 4},
	}
	entries := Rank(aggs)
	require.Len(t, entries, 2)
	assert.Equal(t, "C", entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "A", entries[1].UserID)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, 80.0, entries[1].AccuracyPercentage)
}

func TestRankExcludesNonParticipants(t *testing.T) {
	entries := Rank([]domain.DailyAggregate{
		{UserID: "ghost"},
		{UserID: "u1", QuestionsAnswered: 1},
	})
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, 0.0, entries[0].AccuracyPercentage)
}

func TestRankFullTieUsesEarliestThenUserID(t *testing.T) {
	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	entries := Rank([]domain.DailyAggregate{
		{UserID: "z", Score: 10, MaxStreak: 1, QuestionsAnswered: 1, CorrectAnswers: 1, LastScoredAt: at},
		{UserID: "b", Score: 10, MaxStreak: 1, QuestionsAnswered: 1, CorrectAnswers: 1, LastScoredAt: at.Add(time.Second)},
		{UserID: "a", Score: 10, MaxStreak: 1, QuestionsAnswered: 1, CorrectAnswers: 1, LastScoredAt: at.Add(time.Second)},
	})
	got := []string{entries[0].UserID, entries[1].UserID, entries[2].UserID}
	assert.Equal(t, []string{"z", "a", "b"}, got)
	assert.Equal(t, []int{1, 2, 3}, []int{entries[0].Rank, entries[1].Rank, entries[2].Rank})
}

func TestRankIndependentOfInputOrder(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	aggs := make([]domain.DailyAggregate, 60)
	for i := range aggs {
		answered := 1 + rnd.Intn(5)
		aggs[i] = domain.DailyAggregate{
			UserID:            string(rune('a'+i%26)) + string(rune('A'+i/26)),
			Score:             10 * rnd.Intn(4),
			MaxStreak:         rnd.Intn(3),
			QuestionsAnswered: answered,
			CorrectAnswers:    rnd.Intn(answered + 1),
		}
	}
	want := Rank(aggs)

	for i := 0; i < 20; i++ {
		shuffled := append([]domain.DailyAggregate(nil), aggs...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.Equal(t, want, Rank(shuffled))
	}

	seen := make(map[int]bool)
	for _, e := range want {
		require.False(t, seen[e.Rank], "rank %d shared", e.Rank)
		seen[e.Rank] = true
	}
}

func TestAccuracyRounding(t *testing.T) {
	assert.Equal(t, 66.7, Accuracy(2, 3))
	assert.Equal(t, 33.3, Accuracy(1, 3))
	assert.Equal(t, 100.0, Accuracy(7, 7))
	assert.Equal(t, 0.0, Accuracy(0, 0))
}
