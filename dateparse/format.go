// Package dateparse recognizes the date, time, and duration phrases that may
// trail a list item title, and strips the connector words that precede them.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/todomagic/clock"
)

// dateLayouts are tried in order; the first one that parses wins. Several
// layouts accept the same digit string (01/02/03), so the order decides the
// reading and must not be shuffled.
var dateLayouts = []string{
	"1/2/06",
	"1/2/2006",
	"1-2-06",
	"1-2-2006",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"1.2.2006",
	"2006-2-1",
	"2006/2/1",
	"2006.2.1",
	"2-2006-1",
	"2/2006/1",
	"2.2006.1",
	"1-2006-2",
	"1/2006/2",
	"1.2006.2",
}

var timeLayouts = []string{"15:04", "15 04", "1504"}

var durationPattern = regexp.MustCompile(`^(\d+)\s*(days?|weeks?|months?|years?|[dwmy])$`)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// EndOfDay is the time assigned to due dates that carry no explicit time.
var EndOfDay = TimeOfDay{Hour: 23, Minute: 59}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns date's day at this time of day.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, date.Location())
}

// Of extracts the time of day from t.
func Of(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// CheckDate reports the date s names, trying natural-language phrases before
// the absolute templates. The result is midnight in now's location.
func CheckDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := ParseNatural(s, now); ok {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsDatePhrase reports whether s is any recognized date.
func IsDatePhrase(s string, now time.Time) bool {
	_, ok := CheckDate(s, now)
	return ok
}

// CheckTime parses s against the time templates.
func CheckTime(s string) (TimeOfDay, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 3 && isDigits(s) {
		s = "0" + s
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Of(t), true
		}
	}
	return TimeOfDay{}, false
}

// ParseNatural resolves today, tomorrow, and duration phrases such as "5d" or
// "2 weeks" against now truncated to midnight. Months count as 30 days and
// years as 365.
func ParseNatural(s string, now time.Time) (time.Time, bool) {
	lower := strings.TrimSpace(cases.Lower(language.Und).String(s))
	today := clock.Midnight(now)

	switch lower {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	}

	m := durationPattern.FindStringSubmatch(lower)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	switch m[2][0] {
	case 'd':
		return today.AddDate(0, 0, n), true
	case 'w':
		return today.AddDate(0, 0, 7*n), true
	case 'm':
		return today.AddDate(0, 0, 30*n), true
	case 'y':
		return today.AddDate(0, 0, 365*n), true
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
