package redis

import (
	"context"
	"testing"
	"time"

	"daily-leaderboard-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestEventLedgerAppendsOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	ledger := NewEventLedger(newClient(mr), 0)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e1"} {
		added, err := ledger.Append(ctx, "2026-01-01", domain.AnswerEvent{EventID: id, UserID: "u1", QuestionID: "q", IsCorrect: i == 0, AnsweredAt: at})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if want := i < 2; added != want {
			t.Fatalf("append %d: added=%v want %v", i, added, want)
		}
	}

	events, err := ledger.ListDay(ctx, "2026-01-01")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].EventID != "e1" || events[1].EventID != "e2" {
		t.Fatalf("unexpected events %+v", events)
	}
	if !events[0].IsCorrect || !events[0].AnsweredAt.Equal(at) {
		t.Fatalf("event fields lost: %+v", events[0])
	}
}
