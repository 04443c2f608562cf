// Package task defines list items and the host operations used to read and
// change them.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the completion state of an item.
type Status string

const (
	StatusNeedsAction Status = "needs_action"
	StatusCompleted   Status = "completed"
)

var (
	// ErrNotFound is returned when no item matches.
	ErrNotFound = errors.New("item not found")
	// ErrUnsupported is returned when the list provider cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by list provider")
)

// IsUnsupported reports whether err means the provider lacks a feature,
// either as ErrUnsupported or as host error text saying so.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupported) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not support") || strings.Contains(msg, "unsupported")
}

// Item is one entry of a list entity as the host reports it.
type Item struct {
	UID         string `json:"uid"`
	Summary     string `json:"summary"`
	Status      Status `json:"status"`
	Due         string `json:"due,omitempty"`
	Description string `json:"description,omitempty"`
}

// Completed reports whether the item is checked off.
func (i Item) Completed() bool { return i.Status == StatusCompleted }

// Ref returns the value used to address the item in update and remove calls.
func (i Item) Ref() string {
	if i.UID != "" {
		return i.UID
	}
	return i.Summary
}

// AddRequest creates an item.
type AddRequest struct {
	Summary string `json:"summary"`
	Due     *Due   `json:"due,omitempty"`
}

// UpdateRequest changes an item addressed by Match (uid or summary).
// Nil fields are left unchanged.
type UpdateRequest struct {
	Match  string  `json:"match"`
	Rename *string `json:"rename,omitempty"`
	Status *Status `json:"status,omitempty"`
	Due    *Due    `json:"due,omitempty"`
}

// Host is the list surface of the home-automation host.
type Host interface {
	// GetItems returns every item of entity, completed ones included, in list order.
	GetItems(ctx context.Context, entity string) ([]Item, error)

	AddItem(ctx context.Context, entity string, req AddRequest) error

	UpdateItem(ctx context.Context, entity string, req UpdateRequest) error

	// RemoveItem deletes the item addressed by match (uid or summary).
	RemoveItem(ctx context.Context, entity, match string) error

	// RemoveCompleted deletes every completed item of entity.
	RemoveCompleted(ctx context.Context, entity string) error

	// MoveItem places uid directly after previousUID, or first when previousUID is empty.
	MoveItem(ctx context.Context, entity, uid, previousUID string) error
}

// StateReader reads an entity's state. For list entities the state is the
// number of items still to do.
type StateReader interface {
	State(ctx context.Context, entity string) (string, error)
}

// Due is a parsed due value. Date-only dues have HasTime false and At at midnight.
type Due struct {
	At      time.Time `json:"at"`
	HasTime bool      `json:"has_time"`
}

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04"
)

var dueLayouts = []struct {
	layout  string
	hasTime bool
}{
	{"2006-01-02T15:04:05", true},
	{"2006-01-02T15:04", true},
	{"2006-01-02 15:04:05", true},
	{DateTimeLayout, true},
	{DateLayout, false},
}

// DateOnly returns a date-only Due for t's day.
func DateOnly(t time.Time) Due {
	y, m, d := t.Date()
	return Due{At: time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// DateTime returns a Due at t.
func DateTime(t time.Time) Due {
	return Due{At: t.Truncate(time.Minute), HasTime: true}
}

// ParseDue reads the host's due representation. Zoned timestamps are
// converted to loc and then treated as local wall-clock times.
func ParseDue(s string, loc *time.Location) (Due, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Due{}, fmt.Errorf("parse due: empty")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateTime(t.In(loc)), nil
	}
	for _, l := range dueLayouts {
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return Due{At: t, HasTime: l.hasTime}, nil
		}
	}
	return Due{}, fmt.Errorf("parse due %q: unrecognized format", s)
}

// String renders the due in the form the host accepts for it.
func (d Due) String() string {
	if d.HasTime {
		return d.At.Format(DateTimeLayout)
	}
	return d.At.Format(DateLayout)
}

// Equal compares two dues at minute resolution.
func (d Due) Equal(o Due) bool {
	return d.HasTime == o.HasTime && d.String() == o.String()
}
