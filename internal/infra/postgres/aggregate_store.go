package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"daily-leaderboard-service/internal/domain"
	"github.com/uptrace/bun"
)

type aggregateRow struct {
	bun.BaseModel `bun:"table:daily_aggregates"`

	DayKey            string    `bun:"day_key,pk"`
	UserID            string    `bun:"user_id,pk"`
	Score             int       `bun:"score,notnull"`
	CurrentStreak     int       `bun:"current_streak,notnull"`
	MaxStreak         int       `bun:"max_streak,notnull"`
	QuestionsAnswered int       `bun:"questions_answered,notnull"`
	CorrectAnswers    int       `bun:"correct_answers,notnull"`
	LastScoredAt      time.Time `bun:"last_scored_at,nullzero"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type appliedEventRow struct {
	bun.BaseModel `bun:"table:applied_events"`

	EventID   string    `bun:"event_id,pk"`
	DayKey    string    `bun:"day_key,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	AppliedAt time.Time `bun:"applied_at,nullzero,notnull,default:current_timestamp"`
}

func (r *aggregateRow) toDomain() domain.DailyAggregate {
	agg := domain.DailyAggregate{
		UserID:            r.UserID,
		DayKey:            domain.DayKey(r.DayKey),
		Score:             r.Score,
		CurrentStreak:     r.CurrentStreak,
		MaxStreak:         r.MaxStreak,
		QuestionsAnswered: r.QuestionsAnswered,
		CorrectAnswers:    r.CorrectAnswers,
	}
	if !r.LastScoredAt.IsZero() {
		agg.LastScoredAt = r.LastScoredAt.UTC()
	}
	return agg
}

func rowFromDomain(agg domain.DailyAggregate) *aggregateRow {
	return &aggregateRow{
		DayKey:            string(agg.DayKey),
		UserID:            agg.UserID,
		Score:             agg.Score,
		CurrentStreak:     agg.CurrentStreak,
		MaxStreak:         agg.MaxStreak,
		QuestionsAnswered: agg.QuestionsAnswered,
		CorrectAnswers:    agg.CorrectAnswers,
		LastScoredAt:      agg.LastScoredAt,
		UpdatedAt:         time.Now().UTC(),
	}
}

// AggregateStore keeps daily aggregates in Postgres. Each update locks the
// aggregate row (SELECT ... FOR UPDATE) and records the event id in
// applied_events inside one transaction.
type AggregateStore struct {
	db *bun.DB
}

func NewAggregateStore(db *bun.DB) *AggregateStore {
	return &AggregateStore{db: db}
}

func (s *AggregateStore) Update(ctx context.Context, day domain.DayKey, userID, eventID string, fn func(domain.DailyAggregate) domain.DailyAggregate) (domain.DailyAggregate, error) {
	var result domain.DailyAggregate
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := seedAggregateQuery(tx, day, userID).Exec(ctx); err != nil {
			return fmt.Errorf("seed aggregate: %w", err)
		}

		row := new(aggregateRow)
		if err := lockAggregateQuery(tx, row, day, userID).Scan(ctx); err != nil {
			return fmt.Errorf("lock aggregate: %w", err)
		}

		res, err := recordAppliedQuery(tx, day, userID, eventID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("record applied event: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result = row.toDomain()
			return domain.ErrDuplicateEvent
		}

		next := fn(row.toDomain())
		next.UserID = userID
		next.DayKey = day
		if _, err := saveAggregateQuery(tx, next).Exec(ctx); err != nil {
			return fmt.Errorf("update aggregate: %w", err)
		}
		result = next
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicateEvent) {
		return domain.DailyAggregate{}, err
	}
	return result, err
}

// seedAggregateQuery makes sure the row exists so it can be locked.
func seedAggregateQuery(db bun.IDB, day domain.DayKey, userID string) *bun.InsertQuery {
	return db.NewInsert().
		Model(&aggregateRow{DayKey: string(day), UserID: userID}).
		On("CONFLICT (day_key, user_id) DO NOTHING")
}

func lockAggregateQuery(db bun.IDB, row *aggregateRow, day domain.DayKey, userID string) *bun.SelectQuery {
	return db.NewSelect().Model(row).
		Where("day_key = ?", string(day)).
		Where("user_id = ?", userID).
		For("UPDATE")
}

// recordAppliedQuery inserts nothing when eventID was already applied; the
// caller reads that as a duplicate.
func recordAppliedQuery(db bun.IDB, day domain.DayKey, userID, eventID string) *bun.InsertQuery {
	return db.NewInsert().
		Model(&appliedEventRow{EventID: eventID, DayKey: string(day), UserID: userID}).
		On("CONFLICT (event_id) DO NOTHING")
}

func saveAggregateQuery(db bun.IDB, agg domain.DailyAggregate) *bun.UpdateQuery {
	return db.NewUpdate().Model(rowFromDomain(agg)).WherePK()
}

func (s *AggregateStore) Get(ctx context.Context, day domain.DayKey, userID string) (domain.DailyAggregate, bool, error) {
	row := new(aggregateRow)
	err := s.db.NewSelect().Model(row).
		Where("day_key = ?", string(day)).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DailyAggregate{}, false, nil
	}
	if err != nil {
		return domain.DailyAggregate{}, false, fmt.Errorf("get aggregate: %w", err)
	}
	return row.toDomain(), true, nil
}

func (s *AggregateStore) Seen(ctx context.Context, _ domain.DayKey, _ string, eventID string) (bool, error) {
	return s.db.NewSelect().Model((*appliedEventRow)(nil)).Where("event_id = ?", eventID).Exists(ctx)
}

func (s *AggregateStore) ListDay(ctx context.Context, day domain.DayKey) ([]domain.DailyAggregate, error) {
	var rows []aggregateRow
	if err := s.db.NewSelect().Model(&rows).Where("day_key = ?", string(day)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	out := make([]domain.DailyAggregate, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// DeleteBefore removes archived aggregates and applied-event ids older than day.
func (s *AggregateStore) DeleteBefore(ctx context.Context, day domain.DayKey) (int64, error) {
	var removed int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*aggregateRow)(nil)).Where("day_key < ?", string(day)).Exec(ctx)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		_, err = tx.NewDelete().Model((*appliedEventRow)(nil)).Where("day_key < ?", string(day)).Exec(ctx)
		return err
	})
	return removed, err
}
