package pipeline

import (
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

// DefaultWindow is the span used when a caller gives no start time.
const DefaultWindow = 24 * time.Hour

// Upper bounds for day and hour analysis windows. Larger values would
// overflow time.Duration.
const (
	MaxDays  = 3650
	MaxHours = MaxDays * 24
)

// Window is an analysis range. Both bounds are inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ResolveWindow fills missing bounds: end defaults to now and start to
// end minus DefaultWindow.
func ResolveWindow(start, end, now time.Time) Window {
	if end.IsZero() {
		end = now
	}
	if start.IsZero() {
		start = end.Add(-DefaultWindow)
	}
	return Window{Start: start, End: end}
}

// LastHours returns [now-hours, now].
func LastHours(now time.Time, hours int) Window {
	return Window{Start: now.Add(-time.Duration(hours) * time.Hour), End: now}
}

// LastDays returns [now-days, now] using fixed 24h days.
func LastDays(now time.Time, days int) Window {
	return Window{Start: now.Add(-time.Duration(days) * 24 * time.Hour), End: now}
}

// Truncate floors t to the start of its calendar bucket in UTC. Weeks start
// on Monday.
func Truncate(t time.Time, iv model.Interval) time.Time {
	t = t.UTC()
	switch iv {
	case model.IntervalMinute:
		return t.Truncate(time.Minute)
	case model.IntervalHour:
		return t.Truncate(time.Hour)
	case model.IntervalWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case model.IntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Span is the fixed length of a bucket. Months are a flat 30 days.
func Span(iv model.Interval) time.Duration {
	switch iv {
	case model.IntervalMinute:
		return time.Minute
	case model.IntervalHour:
		return time.Hour
	case model.IntervalWeek:
		return 7 * 24 * time.Hour
	case model.IntervalMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
