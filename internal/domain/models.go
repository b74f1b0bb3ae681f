package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// eventNamespace seeds derived event identities.
var eventNamespace = uuid.MustParse("6f1c1d2e-8a4b-4f0e-9c55-3d7f2a6b9e10")

// DayKey identifies a leaderboard day in the reference zone (YYYY-MM-DD).
type DayKey string

func (d DayKey) String() string { return string(d) }

// AnswerEvent is one recorded quiz-question response. Never mutated once recorded.
type AnswerEvent struct {
	EventID    string    `json:"event_id,omitempty"`
	UserID     string    `json:"user_id"`
	QuestionID string    `json:"question_id"`
	IsCorrect  bool      `json:"is_correct"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Identity returns the idempotency key of the event. Producers that do not
// send an event id get a name-based UUID over user, question and timestamp.
func (e AnswerEvent) Identity() string {
	if e.EventID != "" {
		return e.EventID
	}
	name := e.UserID + "|" + e.QuestionID + "|" + strconv.FormatInt(e.AnsweredAt.UnixNano(), 10)
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// Validate checks the fields every event must carry.
func (e AnswerEvent) Validate() error {
	if e.UserID == "" || e.QuestionID == "" || e.AnsweredAt.IsZero() {
		return ErrInvalidEvent
	}
	return nil
}

// DailyAggregate is the accumulated state of one user on one day.
type DailyAggregate struct {
	UserID            string    `json:"user_id"`
	DayKey            DayKey    `json:"day_key"`
	Score             int       `json:"score"`
	CurrentStreak     int       `json:"current_streak"`
	MaxStreak         int       `json:"max_streak"`
	QuestionsAnswered int       `json:"questions_answered"`
	CorrectAnswers    int       `json:"correct_answers"`
	LastScoredAt      time.Time `json:"last_scored_at,omitempty"`
}

// Participated reports whether the user answered anything that day.
func (a DailyAggregate) Participated() bool {
	return a.QuestionsAnswered > 0
}

// LeaderboardEntry is a ranked, display-ready projection of an aggregate.
type LeaderboardEntry struct {
	UserID             string  `json:"user_id"`
	UserName           string  `json:"user_name"`
	DailyScore         int     `json:"daily_score"`
	DailyStreak        int     `json:"daily_streak"`
	AccuracyPercentage float64 `json:"accuracy_percentage"`
	QuestionsAnswered  int     `json:"questions_answered"`
	CorrectAnswers     int     `json:"correct_answers"`
	Rank               int     `json:"rank"`
}

// LeaderboardResponse is the daily ranking returned to presentation layers.
type LeaderboardResponse struct {
	Date        DayKey             `json:"date"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// ApplyResult summarizes the outcome of ingesting one event.
type ApplyResult struct {
	EventID   string         `json:"event_id"`
	Duplicate bool           `json:"duplicate"`
	Awarded   int            `json:"awarded"`
	Aggregate DailyAggregate `json:"aggregate"`
}

// RejectedEvent is an event parked for manual reconciliation.
type RejectedEvent struct {
	Event      AnswerEvent `json:"event"`
	Reason     string      `json:"reason"`
	RejectedAt time.Time   `json:"rejected_at"`
}
