// Package scoring holds the pure rules of the daily leaderboard: which day an
// answer belongs to, how streaks move, and how many points an answer earns.
package scoring

import (
	"fmt"
	"strings"
	"time"

	"daily-leaderboard-service/internal/domain"
)

const dayKeyLayout = "2006-01-02"

// maxOffset bounds the reference offset to real-world zones.
const maxOffset = 14 * time.Hour

// DayPolicy partitions time into leaderboard days using one fixed-offset zone
// for every user, so rankings stay globally comparable.
type DayPolicy struct {
	loc   *time.Location
	grace time.Duration
}

// NewDayPolicy builds a policy for the given UTC offset and late-arrival grace.
func NewDayPolicy(offset, grace time.Duration) DayPolicy {
	if grace < 0 {
		grace = 0
	}
	name := "UTC"
	if offset != 0 {
		name = formatOffset(offset)
	}
	return DayPolicy{loc: time.FixedZone(name, int(offset/time.Second)), grace: grace}
}

// ParseOffset reads "+HH:MM"/"-HH:MM" (or "", "Z", "UTC") into a duration.
func ParseOffset(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToUpper(raw) {
	case "", "Z", "UTC":
		return 0, nil
	}
	t, err := time.Parse("-07:00", raw)
	if err != nil {
		return 0, fmt.Errorf("parse utc offset %q: %w", raw, err)
	}
	_, secs := t.Zone()
	offset := time.Duration(secs) * time.Second
	if offset > maxOffset || offset < -maxOffset {
		return 0, fmt.Errorf("utc offset %q out of range", raw)
	}
	return offset, nil
}

func formatOffset(offset time.Duration) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, int(offset/time.Hour), int(offset%time.Hour/time.Minute))
}

// Location returns the reference zone.
func (p DayPolicy) Location() *time.Location { return p.loc }

// Grace returns the late-arrival window.
func (p DayPolicy) Grace() time.Duration { return p.grace }

// DayKeyOf maps an instant to its leaderboard day.
func (p DayPolicy) DayKeyOf(t time.Time) domain.DayKey {
	return domain.DayKey(t.In(p.loc).Format(dayKeyLayout))
}

// Today is the day key of now.
func (p DayPolicy) Today(now time.Time) domain.DayKey {
	return p.DayKeyOf(now)
}

// ParseDayKey validates a YYYY-MM-DD string.
func (p DayPolicy) ParseDayKey(raw string) (domain.DayKey, error) {
	t, err := time.ParseInLocation(dayKeyLayout, raw, p.loc)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidDayKey, raw)
	}
	return domain.DayKey(t.Format(dayKeyLayout)), nil
}

// Bounds returns the half-open interval [start, end) covered by day.
func (p DayPolicy) Bounds(day domain.DayKey) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dayKeyLayout, string(day), p.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidDayKey, day)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// CheckWritable rejects answers that predate the start of today by more than
// the grace window, answers from further than the grace window in the future,
// and answers for a day that is already frozen.
func (p DayPolicy) CheckWritable(answeredAt, now time.Time) error {
	start, _, err := p.Bounds(p.Today(now))
	if err != nil {
		return err
	}
	if answeredAt.Before(start.Add(-p.grace)) {
		return fmt.Errorf("%w: answered %s before rollover %s", domain.ErrOutOfOrderEvent,
			answeredAt.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}
	if answeredAt.After(now.Add(p.grace)) {
		return fmt.Errorf("%w: answered %s is in the future", domain.ErrOutOfOrderEvent,
			answeredAt.UTC().Format(time.RFC3339))
	}
	if day := p.DayKeyOf(answeredAt); p.Frozen(day, now) {
		return fmt.Errorf("%w: day %s is frozen", domain.ErrOutOfOrderEvent, day)
	}
	return nil
}

// Frozen reports whether day ended more than the grace window ago.
func (p DayPolicy) Frozen(day domain.DayKey, now time.Time) bool {
	_, end, err := p.Bounds(day)
	if err != nil {
		return false
	}
	return !now.Before(end.Add(p.grace))
}
