package postgres

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"daily-leaderboard-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// newOfflineDB renders queries only; sql.OpenDB does not dial.
func newOfflineDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN("postgres://lb:lb@127.0.0.1:1/lb?sslmode=disable")))
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSeedAggregateQuery(t *testing.T) {
	q := seedAggregateQuery(newOfflineDB(t), "2026-04-20", "u1").String()
	assert.True(t, strings.HasPrefix(q, `INSERT INTO "daily_aggregates"`), q)
	assert.Contains(t, q, "'2026-04-20'")
	assert.Contains(t, q, "'u1'")
	assert.Contains(t, q, "ON CONFLICT (day_key, user_id) DO NOTHING")
}

func TestLockAggregateQueryLocksOneRow(t *testing.T) {
	q := lockAggregateQuery(newOfflineDB(t), new(aggregateRow), "2026-04-20", "u'1").String()
	assert.Contains(t, q, `FROM "daily_aggregates"`)
	assert.Contains(t, q, "(day_key = '2026-04-20')")
	assert.Contains(t, q, "(user_id = 'u''1')", "user ids are quoted")
	assert.True(t, strings.HasSuffix(q, "FOR UPDATE"), q)
}

func TestRecordAppliedQueryDedupesOnEventID(t *testing.T) {
	q := recordAppliedQuery(newOfflineDB(t), "2026-04-20", "u1", "ev-1").String()
	assert.True(t, strings.HasPrefix(q, `INSERT INTO "applied_events"`), q)
	assert.Contains(t, q, "'ev-1'")
	assert.Contains(t, q, "ON CONFLICT (event_id) DO NOTHING")
}

func TestSaveAggregateQueryTargetsPrimaryKey(t *testing.T) {
	agg := domain.DailyAggregate{
		UserID:            "u1",
		DayKey:            "2026-04-20",
		Score:             31,
		CurrentStreak:     3,
		MaxStreak:         3,
		QuestionsAnswered: 3,
		CorrectAnswers:    3,
		LastScoredAt:      time.Date(2026, 4, 20, 9, 2, 0, 0, time.UTC),
	}
	q := saveAggregateQuery(newOfflineDB(t), agg).String()
	assert.True(t, strings.HasPrefix(q, `UPDATE "daily_aggregates"`), q)
	assert.Contains(t, q, `"score" = 31`)
	assert.Contains(t, q, `"max_streak" = 3`)
	assert.Contains(t, q, `."day_key" = '2026-04-20'`)
	assert.Contains(t, q, `."user_id" = 'u1'`)
}

func TestAggregateRowRoundTrip(t *testing.T) {
	agg := domain.DailyAggregate{
		UserID:            "u1",
		DayKey:            "2026-04-20",
		Score:             40,
		CurrentStreak:     2,
		MaxStreak:         2,
		QuestionsAnswered: 5,
		CorrectAnswers:    4,
		LastScoredAt:      time.Date(2026, 4, 20, 9, 4, 0, 0, time.FixedZone("x", 3600)),
	}
	got := rowFromDomain(agg).toDomain()
	assert.Equal(t, agg.Score, got.Score)
	assert.Equal(t, agg.CorrectAnswers, got.CorrectAnswers)
	assert.True(t, agg.LastScoredAt.Equal(got.LastScoredAt))
	assert.Equal(t, time.UTC, got.LastScoredAt.Location())

	empty := (&aggregateRow{DayKey: "2026-04-20", UserID: "u2"}).toDomain()
	require.True(t, empty.LastScoredAt.IsZero())
	assert.False(t, empty.Participated())
}
