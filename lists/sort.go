// Package lists holds the list-wide rules: ordering by due date, smart-list
// timeframes and completed-item clearing.
package lists

import (
	"slices"
	"time"

	"github.com/GoCodeAlone/todomagic/task"
)

// Move is one reorder call: place UID directly after PreviousUID, or first
// when PreviousUID is empty.
type Move struct {
	UID         string `json:"uid"`
	PreviousUID string `json:"previous_uid,omitempty"`
}

// dueKey returns the instant an item sorts by. Date-only dues sort as
// midnight. ok is false for a missing or unreadable due.
func dueKey(it task.Item, loc *time.Location) (time.Time, bool) {
	if it.Due == "" {
		return time.Time{}, false
	}
	d, err := task.ParseDue(it.Due, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d.At, true
}

// SortByDue returns the items in ascending due order. Items without a usable
// due go last. Ties keep their original order.
func SortByDue(items []task.Item, loc *time.Location) []task.Item {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b task.Item) int {
		ka, okA := dueKey(a, loc)
		kb, okB := dueKey(b, loc)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		return ka.Compare(kb)
	})
	return out
}

// PlanMoves returns the moves that turn the open items of current into due
// order. Completed items are ignored. An empty plan means the list is already sorted.
func PlanMoves(current []task.Item, loc *time.Location) []Move {
	var open []task.Item
	for _, it := range current {
		if !it.Completed() {
			open = append(open, it)
		}
	}
	sorted := SortByDue(open, loc)

	order := make([]string, len(open))
	for i, it := range open {
		order[i] = it.UID
	}

	var moves []Move
	for i, it := range sorted {
		if order[i] == it.UID {
			continue
		}
		prev := ""
		if i > 0 {
			prev = sorted[i-1].UID
		}
		moves = append(moves, Move{UID: it.UID, PreviousUID: prev})

		from := slices.Index(order, it.UID)
		order = slices.Delete(order, from, from+1)
		order = slices.Insert(order, i, it.UID)
	}
	return moves
}
