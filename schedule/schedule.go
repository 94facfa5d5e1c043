// Package schedule repeats a run at a weekday/time-of-day or a fixed
// interval. It knows nothing about syncing; each tick calls back into the
// caller, which owns retry policy.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Schedule describes when repeated runs fire. When At is set, runs fire at
// that local time of day, every day or pinned to Weekday. Otherwise they
// fire every Every.
type Schedule struct {
	Weekday *time.Weekday
	At      string // "15:04"
	Every   time.Duration
}

// Parse builds a Schedule from configuration strings. weekday may be empty
// or a full English day name; at may be empty or "HH:MM".
func Parse(weekday, at string, every time.Duration) (*Schedule, error) {
	s := &Schedule{At: at, Every: every}
	if weekday != "" {
		wd, err := parseWeekday(weekday)
		if err != nil {
			return nil, err
		}
		s.Weekday = &wd
	}
	if at != "" {
		if _, err := time.Parse("15:04", at); err != nil {
			return nil, fmt.Errorf("parse time of day %q: %w", at, err)
		}
	} else if s.Weekday != nil {
		// An interval loop never looks at the weekday; accepting one here
		// would silently run on every day.
		return nil, errors.New("weekday schedule needs a time of day")
	} else if every <= 0 {
		return nil, errors.New("schedule needs a time of day or an interval")
	}
	return s, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// Next returns the first scheduled instant strictly after now.
func (s *Schedule) Next(now time.Time) time.Time {
	if s.At == "" {
		return now.Add(s.Every)
	}

	tod, _ := time.Parse("15:04", s.At)
	next := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location())
	if s.Weekday != nil {
		for next.Weekday() != *s.Weekday {
			next = next.AddDate(0, 0, 1)
		}
	}
	if !next.After(now) {
		if s.Weekday != nil {
			next = next.AddDate(0, 0, 7)
		} else {
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}

// Run invokes fn at each scheduled instant until ctx is cancelled. A failed
// run is logged and the loop keeps going; the next tick is the retry.
func Run(ctx context.Context, s *Schedule, fn func(context.Context) error) {
	// A timer, not a ticker: a run that overshoots the interval must not
	// queue up extra ticks behind itself.
	for {
		next := s.Next(time.Now())
		slog.Info("next run scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scheduled run failed", "error", err)
		}
	}
}
