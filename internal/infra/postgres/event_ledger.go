package postgres

import (
	"context"
	"fmt"

	"daily-leaderboard-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// EventLedger is the append-only answer_events table. seq preserves arrival order.
type EventLedger struct {
	pool *pgxpool.Pool
}

func NewEventLedger(pool *pgxpool.Pool) *EventLedger {
	return &EventLedger{pool: pool}
}

func (l *EventLedger) Append(ctx context.Context, day domain.DayKey, ev domain.AnswerEvent) (bool, error) {
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO answer_events (event_id, day_key, user_id, question_id, is_correct, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.Identity(), string(day), ev.UserID, ev.QuestionID, ev.IsCorrect, ev.AnsweredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *EventLedger) ListDay(ctx context.Context, day domain.DayKey) ([]domain.AnswerEvent, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT event_id, user_id, question_id, is_correct, answered_at
		FROM answer_events WHERE day_key=$1 ORDER BY seq`, string(day))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.AnswerEvent
	for rows.Next() {
		var ev domain.AnswerEvent
		if err := rows.Scan(&ev.EventID, &ev.UserID, &ev.QuestionID, &ev.IsCorrect, &ev.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.AnsweredAt = ev.AnsweredAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}
