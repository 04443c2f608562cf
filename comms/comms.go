// Package comms provides the in-process event bus that connects triggers,
// the reconciliation engine and the API.
package comms

import (
	"context"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	TypeCountChanged   EventType = "count_changed"   // a list's open-item count went up
	TypeStateChanged   EventType = "state_changed"   // any other change of a list's state
	TypeMidnight       EventType = "midnight"        // local day rolled over
	TypeAction         EventType = "action"          // the engine changed a list
	TypeConfigReloaded EventType = "config_reloaded" // configuration file was reloaded
)

// Wildcard subscribes to every event type.
const Wildcard = "*"

// MetaNumeric is set to "false" on state events whose state is not an item count.
const MetaNumeric = "numeric"

// Event is one notification on the bus.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Entity    string            `json:"entity,omitempty"`
	OldState  string            `json:"old_state,omitempty"`
	NewState  string            `json:"new_state,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler processes an event.
type Handler func(ctx context.Context, ev *Event) error

// Bus carries events from producers to subscribers.
type Bus interface {
	// Publish delivers ev to every handler subscribed to its type or to Wildcard.
	Publish(ctx context.Context, ev *Event) error

	// Subscribe registers a handler for topic (an EventType or Wildcard).
	// Returns an unsubscribe function.
	Subscribe(topic string, handler Handler) (unsubscribe func())

	// History returns recent events, oldest first. An empty entity matches all.
	History(entity string, limit int) ([]*Event, error)
}
