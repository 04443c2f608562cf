// Package repeat parses the bracketed repeat tokens that may end a list item
// title ([d], [2w], [w-mwf], [mwf]) and computes when a repeating item is due.
package repeat

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidToken is returned for tokens that are not a repeat rule.
var ErrInvalidToken = errors.New("invalid repeat token")

// Unit is the step of a simple repeat rule.
type Unit int

const (
	Day Unit = iota
	Week
	Month
	Year
)

var unitLetters = map[byte]Unit{'d': Day, 'w': Week, 'm': Month, 'y': Year}

// Letter returns the single-letter token form of u.
func (u Unit) Letter() string {
	switch u {
	case Day:
		return "d"
	case Week:
		return "w"
	case Month:
		return "m"
	case Year:
		return "y"
	}
	return "?"
}

func (u Unit) String() string {
	switch u {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	}
	return "unknown"
}

// Rule is a parsed repeat token: either Simple or WeekdaySet.
type Rule interface {
	// Interval is the number of units (or weeks) between occurrences.
	Interval() int
	// Token renders the canonical bracketed form.
	Token() string
	// String describes the rule in words.
	String() string
	rule()
}

// Simple repeats every Every units.
type Simple struct {
	Unit  Unit `json:"unit"`
	Every int  `json:"every"`
}

func (s Simple) Interval() int { return s.Every }

func (s Simple) Token() string {
	if s.Every == 1 {
		return "[" + s.Unit.Letter() + "]"
	}
	return fmt.Sprintf("[%d%s]", s.Every, s.Unit.Letter())
}

func (s Simple) String() string {
	if s.Every == 1 {
		return "every " + s.Unit.String()
	}
	return fmt.Sprintf("every %d %ss", s.Every, s.Unit)
}

func (Simple) rule() {}

// WeekdaySet repeats on fixed days of the week, every Every weeks. Days are
// kept in Monday-first order without duplicates.
type WeekdaySet struct {
	Every int            `json:"every"`
	Days  []time.Weekday `json:"days"`
}

func (w WeekdaySet) Interval() int { return w.Every }

func (w WeekdaySet) Token() string {
	var b strings.Builder
	b.WriteByte('[')
	if w.Every != 1 {
		b.WriteString(strconv.Itoa(w.Every))
	}
	b.WriteString("w-")
	for _, d := range w.Days {
		b.WriteByte(dayLetter(d))
	}
	b.WriteByte(']')
	return b.String()
}

// Has reports whether d is one of the set's days.
func (w WeekdaySet) Has(d time.Weekday) bool {
	for _, x := range w.Days {
		if x == d {
			return true
		}
	}
	return false
}

func (w WeekdaySet) String() string {
	names := make([]string, len(w.Days))
	for i, d := range w.Days {
		names[i] = strings.ToLower(d.String()[:3])
	}
	every := "every week"
	if w.Every != 1 {
		every = fmt.Sprintf("every %d weeks", w.Every)
	}
	return every + " on " + strings.Join(names, ", ")
}

func (WeekdaySet) rule() {}

var dayLetters = map[rune]time.Weekday{
	'm': time.Monday,
	't': time.Tuesday,
	'w': time.Wednesday,
	'r': time.Thursday,
	'f': time.Friday,
	's': time.Saturday,
	'u': time.Sunday,
}

func dayLetter(d time.Weekday) byte {
	return "umtwrfs"[d]
}

var (
	simplePattern    = regexp.MustCompile(`^(\d+)([dwmy])$`)
	weekdayPattern   = regexp.MustCompile(`^(?:(\d+)w|w)-([a-z]+)$`)
	shorthandPattern = regexp.MustCompile(`^[mtwrfsu]+$`)
)

// IsToken reports whether word has the bracketed shape of a repeat token.
func IsToken(word string) bool {
	return len(word) >= 2 && strings.HasPrefix(word, "[") && strings.HasSuffix(word, "]")
}

// Parse reads a bracketed repeat token.
func Parse(token string) (Rule, error) {
	if !IsToken(token) {
		return nil, fmt.Errorf("%w: %q is not bracketed", ErrInvalidToken, token)
	}
	inner := strings.TrimSpace(cases.Lower(language.Und).String(token[1 : len(token)-1]))
	if inner == "" {
		return nil, fmt.Errorf("%w: %q is empty", ErrInvalidToken, token)
	}

	if len(inner) == 1 {
		if u, ok := unitLetters[inner[0]]; ok {
			return Simple{Unit: u, Every: 1}, nil
		}
	}

	if m := simplePattern.FindStringSubmatch(inner); m != nil {
		n, err := interval(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidToken, token, err)
		}
		return Simple{Unit: unitLetters[m[2][0]], Every: n}, nil
	}

	if m := weekdayPattern.FindStringSubmatch(inner); m != nil {
		n := 1
		if m[1] != "" {
			var err error
			if n, err = interval(m[1]); err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidToken, token, err)
			}
		}
		days := weekdays(m[2])
		if len(days) == 0 {
			return nil, fmt.Errorf("%w: %q names no weekdays", ErrInvalidToken, token)
		}
		return WeekdaySet{Every: n, Days: days}, nil
	}

	if shorthandPattern.MatchString(inner) {
		return WeekdaySet{Every: 1, Days: weekdays(inner)}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidToken, token)
}

func interval(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("interval %d must be at least 1", n)
	}
	return n, nil
}

// weekdays maps day letters to weekdays in Monday-first order. Unknown letters
// and repeats are dropped.
func weekdays(letters string) []time.Weekday {
	var seen [7]bool
	for _, r := range letters {
		if d, ok := dayLetters[r]; ok {
			seen[mondayIndex(d)] = true
		}
	}
	var out []time.Weekday
	for i, ok := range seen {
		if ok {
			out = append(out, time.Weekday((i+1)%7))
		}
	}
	return out
}

// mondayIndex numbers weekdays Monday=0 through Sunday=6.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}
