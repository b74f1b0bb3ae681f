package scoring

import (
	"math"
	"sort"

	"daily-leaderboard-service/internal/domain"
)

// Accuracy returns the percentage of correct answers rounded to one decimal.
func Accuracy(correct, answered int) float64 {
	if answered <= 0 {
		return 0
	}
	return math.Round(1000*float64(correct)/float64(answered)) / 10
}

// Less orders two aggregates for ranking: score desc, max streak desc, the
// earlier time the score was reached, then user id. It is a total order for
// aggregates of distinct users.
func Less(a, b domain.DailyAggregate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.MaxStreak != b.MaxStreak {
		return a.MaxStreak > b.MaxStreak
	}
	if !a.LastScoredAt.Equal(b.LastScoredAt) {
		return a.LastScoredAt.Before(b.LastScoredAt)
	}
	return a.UserID < b.UserID
}

// Rank drops non-participants, orders the rest and assigns distinct 1-based
// ranks. UserName is left empty for the caller to fill. The input is not
// modified.
func Rank(aggs []domain.DailyAggregate) []domain.LeaderboardEntry {
	ranked := make([]domain.DailyAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if agg.Participated() {
			ranked = append(ranked, agg)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return Less(ranked[i], ranked[j]) })

	entries := make([]domain.LeaderboardEntry, len(ranked))
	for i, agg := range ranked {
		entries[i] = domain.LeaderboardEntry{
			UserID:             agg.UserID,
			DailyScore:         agg.Score,
			DailyStreak:        agg.MaxStreak,
			AccuracyPercentage: Accuracy(agg.CorrectAnswers, agg.QuestionsAnswered),
			QuestionsAnswered:  agg.QuestionsAnswered,
			CorrectAnswers:     agg.CorrectAnswers,
			Rank:               i + 1,
		}
	}
	return entries
}
