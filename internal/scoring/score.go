package scoring

import (
	"daily-leaderboard-service/internal/domain"
)

// BasePoints is awarded for every correct answer.
const BasePoints = 10

// StreakBonus returns the bonus for a correct answer that produced streak.
func StreakBonus(streak int) int {
	switch {
	case streak >= 10:
		return 3
	case streak >= 5:
		return 2
	case streak >= 3:
		return 1
	default:
		return 0
	}
}

// ScoreDelta is the number of points earned by one answer. streakAfter is the
// streak value after this answer was counted.
func ScoreDelta(correct bool, streakAfter int) int {
	if !correct {
		return 0
	}
	return BasePoints + StreakBonus(streakAfter)
}

// Apply folds one event into an aggregate and returns the new aggregate and
// the points awarded. Stores call it while holding the aggregate's key, so it
// must stay free of side effects.
func Apply(agg domain.DailyAggregate, ev domain.AnswerEvent) (domain.DailyAggregate, int) {
	streak := Streak{Current: agg.CurrentStreak, Max: agg.MaxStreak}.Next(ev.IsCorrect)
	delta := ScoreDelta(ev.IsCorrect, streak.Current)

	agg.UserID = ev.UserID
	agg.QuestionsAnswered++
	if ev.IsCorrect {
		agg.CorrectAnswers++
	}
	agg.CurrentStreak = streak.Current
	agg.MaxStreak = streak.Max
	if delta > 0 {
		agg.Score += delta
		agg.LastScoredAt = ev.AnsweredAt.UTC()
	}
	return agg, delta
}
