package repeat

import (
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
)

// First returns the due date of the first instance of a newly created
// repeating item. Simple rules are due on the creation day. Weekday sets are
// due today when today is in the set, otherwise on the next day in the set;
// the interval only spaces later instances.
func First(today time.Time, r Rule) time.Time {
	today = clock.Midnight(today)
	ws, ok := r.(WeekdaySet)
	if !ok || len(ws.Days) == 0 {
		return today
	}
	if ws.Has(today.Weekday()) {
		return today
	}
	cur := mondayIndex(today.Weekday())
	if next, ok := nextAfter(ws, cur); ok {
		return today.AddDate(0, 0, next-cur)
	}
	return today.AddDate(0, 0, 7-cur+mondayIndex(ws.Days[0]))
}

// Next returns the due date of the instance that follows one completed on
// completed and previously due on due. Completion on or before the due day is
// early; after it is late. Day and week rules count from the completion day.
// Month rules land on the last day of the target month at 23:59. The bool is
// false when r is not a rule this package knows how to schedule.
func Next(completed, due time.Time, r Rule) (time.Time, bool) {
	c := clock.Midnight(completed)
	d := clock.Midnight(due)
	early := !c.After(d)

	switch r := r.(type) {
	case Simple:
		if r.Every < 1 {
			return time.Time{}, false
		}
		anchor := c
		if early {
			anchor = d
		}
		switch r.Unit {
		case Day:
			return c.AddDate(0, 0, r.Every), true
		case Week:
			return c.AddDate(0, 0, 7*r.Every), true
		case Month:
			return endOfMonth(anchor, r.Every), true
		case Year:
			return sameDayInYear(anchor, anchor.Year()+r.Every), true
		}
	case WeekdaySet:
		if r.Every < 1 || len(r.Days) == 0 {
			return time.Time{}, false
		}
		return c.AddDate(0, 0, weekdayOffset(r, c, d, early)), true
	}
	return time.Time{}, false
}

func weekdayOffset(r WeekdaySet, c, d time.Time, early bool) int {
	cw := mondayIndex(c.Weekday())
	extra := (r.Every - 1) * 7
	wrap := 7 - cw + mondayIndex(r.Days[0]) + extra

	if !early {
		if next, ok := nextAfter(r, cw); ok {
			return next - cw
		}
		return wrap
	}

	next, ok := nextAfter(r, mondayIndex(d.Weekday()))
	if !ok {
		return wrap
	}
	ahead := next - cw
	if ahead <= 0 {
		ahead += 7 + extra
	}
	return ahead
}

// nextAfter returns the Monday-first index of the first set day strictly
// after idx within the same week.
func nextAfter(r WeekdaySet, idx int) (int, bool) {
	for _, day := range r.Days {
		if i := mondayIndex(day); i > idx {
			return i, true
		}
	}
	return 0, false
}

func endOfMonth(anchor time.Time, months int) time.Time {
	m := int(anchor.Month()) + months
	y := anchor.Year() + (m-1)/12
	m = (m-1)%12 + 1
	// Day 0 of the following month is the last day of month m.
	return time.Date(y, time.Month(m)+1, 0, 23, 59, 0, 0, anchor.Location())
}

// sameDayInYear moves anchor to year, clamping Feb 29 to Feb 28.
func sameDayInYear(anchor time.Time, year int) time.Time {
	day := anchor.Day()
	last := time.Date(year, anchor.Month()+1, 0, 0, 0, 0, 0, anchor.Location()).Day()
	if day > last {
		day = last
	}
	return time.Date(year, anchor.Month(), day, 0, 0, 0, 0, anchor.Location())
}
