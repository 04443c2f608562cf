// Package extract splits a list item title into the task name and the
// trailing scheduling directives: a date, an optional time, and an optional
// repeat token.
//
// Titles follow the grammar
//
//	<task words...> [<date-phrase>] [at|@ <time>] [<repeat-token>]
//
// and are read right to left.
package extract

import (
	"strings"
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
	"github.com/GoCodeAlone/todomagic/dateparse"
	"github.com/GoCodeAlone/todomagic/repeat"
)

// Schedule is what Extract found in one title.
type Schedule struct {
	Name        string
	RepeatToken string
	Rule        repeat.Rule
	// TokenErr is set when the trailing bracketed word did not parse.
	TokenErr error
	Time     *dateparse.TimeOfDay
	Date     *time.Time
}

// Extract scans the words of an already normalized title from the end,
// peeling off at most one repeat token, then one time (with an optional
// "at" or "@" before it), then a one or two word date. Scanning stops at the
// first stage that does not match.
func Extract(title string, today time.Time) Schedule {
	words := strings.Fields(title)
	end := len(words)
	var s Schedule

	if end > 0 && repeat.IsToken(words[end-1]) {
		s.RepeatToken = words[end-1]
		s.Rule, s.TokenErr = repeat.Parse(s.RepeatToken)
		end--
	}

	if end > 0 {
		if tod, ok := dateparse.CheckTime(words[end-1]); ok {
			s.Time = &tod
			end--
			if end > 0 && (strings.EqualFold(words[end-1], "at") || words[end-1] == "@") {
				end--
			}
		}
	}

	if end > 0 {
		if d, ok := dateparse.CheckDate(words[end-1], today); ok {
			s.Date = &d
			end--
		} else if end > 1 {
			if d, ok := dateparse.CheckDate(words[end-2]+" "+words[end-1], today); ok {
				s.Date = &d
				end -= 2
			}
		}
	}

	s.Name = strings.Join(words[:end], " ")
	return s
}

// IsCandidate reports whether the title carried anything to schedule.
func (s Schedule) IsCandidate() bool {
	return s.Rule != nil || s.Date != nil
}

// Title is the rewritten title: the task name with the repeat token kept on
// the end. A token that failed to parse is kept too, since it was never a
// directive this package consumed.
func (s Schedule) Title() string {
	switch {
	case s.RepeatToken == "":
		return s.Name
	case s.Name == "":
		return s.RepeatToken
	}
	return s.Name + " " + s.RepeatToken
}

// Due computes the due date and time. A repeat rule decides the date on its
// own, overriding any date in the text. Without an explicit time the item is
// due at 23:59. ok is false when there is nothing to schedule.
func (s Schedule) Due(today time.Time) (due time.Time, ok bool) {
	var day time.Time
	switch {
	case s.Rule != nil:
		day = repeat.First(today, s.Rule)
	case s.Date != nil:
		day = *s.Date
	default:
		return time.Time{}, false
	}
	tod := dateparse.EndOfDay
	if s.Time != nil {
		tod = *s.Time
	}
	return tod.On(day), true
}

// Candidate reports whether a title mentions a date phrase or a repeat token
// anywhere, checking single words and adjacent pairs. It is a cheap filter;
// Extract decides what is actually scheduled.
func Candidate(title string, today time.Time) bool {
	words := strings.Fields(dateparse.RemovePrefixes(title))
	for i, w := range words {
		if repeat.IsToken(w) {
			if _, err := repeat.Parse(w); err == nil {
				return true
			}
		}
		if dateparse.IsDatePhrase(w, today) {
			return true
		}
		if i+1 < len(words) && dateparse.IsDatePhrase(w+" "+words[i+1], today) {
			return true
		}
	}
	return false
}

// Plan is the rewrite a title calls for.
type Plan struct {
	Original string    `json:"original"`
	Title    string    `json:"title"`
	Name     string    `json:"name"`
	Token    string    `json:"repeat_token,omitempty"`
	Rule     string    `json:"rule,omitempty"`
	Due      time.Time `json:"due"`
}

// Build normalizes and extracts title in one step. ok is false when the title
// is not a scheduling candidate. An empty task name keeps the original title.
func Build(title string, now time.Time) (Plan, Schedule, bool) {
	today := clock.Midnight(now)
	s := Extract(dateparse.RemovePrefixes(title), today)
	due, ok := s.Due(today)
	if !ok {
		return Plan{}, s, false
	}
	p := Plan{
		Original: title,
		Title:    s.Title(),
		Name:     s.Name,
		Token:    s.RepeatToken,
		Due:      due,
	}
	if s.Rule != nil {
		p.Rule = s.Rule.Token()
	}
	if s.Name == "" {
		p.Title = title
	}
	return p, s, true
}
