package lists

import (
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
)

// Timeframe buckets a due date relative to today.
type Timeframe string

const (
	Today     Timeframe = "today"
	ThisWeek  Timeframe = "this_week"
	ThisMonth Timeframe = "this_month"
	Other     Timeframe = "other"
)

// Classify returns the timeframe of due. Weeks run Sunday to Saturday, so
// earlier days of the current week still count as this week.
func Classify(due, today time.Time) Timeframe {
	d := clock.Midnight(due)
	t := clock.Midnight(today)
	if d.Equal(t) {
		return Today
	}
	weekStart := t.AddDate(0, 0, -int(t.Weekday()))
	weekEnd := weekStart.AddDate(0, 0, 6)
	if !d.Before(weekStart) && !d.After(weekEnd) {
		return ThisWeek
	}
	if d.Year() == t.Year() && d.Month() == t.Month() {
		return ThisMonth
	}
	return Other
}

// SmartLists names the entities that mirror near-term tasks. Empty names are
// not configured.
type SmartLists struct {
	Daily   string `json:"daily,omitempty"`
	Weekly  string `json:"weekly,omitempty"`
	Monthly string `json:"monthly,omitempty"`
}

// Targets returns the smart lists an item in timeframe tf belongs to. Shorter
// timeframes also appear in the longer lists.
func (s SmartLists) Targets(tf Timeframe) []string {
	var names []string
	switch tf {
	case Today:
		names = []string{s.Daily, s.Weekly, s.Monthly}
	case ThisWeek:
		names = []string{s.Weekly, s.Monthly}
	case ThisMonth:
		names = []string{s.Monthly}
	}
	out := names[:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// All returns the configured smart-list entities.
func (s SmartLists) All() []string {
	return s.Targets(Today)
}

// Contains reports whether entity is one of the smart lists.
func (s SmartLists) Contains(entity string) bool {
	return entity != "" && (entity == s.Daily || entity == s.Weekly || entity == s.Monthly)
}
