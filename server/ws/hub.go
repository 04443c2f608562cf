// Package ws streams bus events to browsers and CLI followers as Server-Sent
// Events.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/todomagic/comms"
)

const (
	// DefaultKeepAlive is how often an idle stream gets a comment line.
	DefaultKeepAlive = 25 * time.Second

	subscriberBuffer = 64
	replayLimit      = 100
)

// Frame is the JSON carried on each data line of the stream.
type Frame struct {
	Type    string       `json:"type"`
	Payload *comms.Event `json:"payload,omitempty"`
}

// HistoryFunc returns recent events for entity, oldest first. comms.Bus.History fits.
type HistoryFunc func(entity string, limit int) ([]*comms.Event, error)

// message is a frame already encoded for the wire.
type message struct {
	id    string
	event string
	data  []byte
}

type subscriber struct {
	out    chan message
	entity string // empty streams every list
}

// wants reports whether events for entity belong on this stream. Events that
// name no list (midnight, reloads) go to everyone.
func (s *subscriber) wants(entity string) bool {
	return s.entity == "" || entity == "" || s.entity == entity
}

// Hub fans bus events out to connected SSE streams.
type Hub struct {
	mu        sync.RWMutex
	subs      map[*subscriber]struct{}
	history   HistoryFunc
	keepAlive time.Duration
	dropped   atomic.Uint64
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a Hub ready to accept connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:      make(map[*subscriber]struct{}),
		keepAlive: DefaultKeepAlive,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Close ends every open stream and refuses new ones. An http.Server cannot
// finish a graceful shutdown while streams are open, so call Close first.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// SetHistory enables replay of missed events for clients that reconnect with
// a Last-Event-ID header.
func (h *Hub) SetHistory(fn HistoryFunc) {
	h.mu.Lock()
	h.history = fn
	h.mu.Unlock()
}

// SetKeepAlive changes the idle comment interval. Zero disables it.
func (h *Hub) SetKeepAlive(d time.Duration) {
	h.mu.Lock()
	h.keepAlive = d
	h.mu.Unlock()
}

func encode(ev *comms.Event) (message, error) {
	data, err := json.Marshal(Frame{Type: string(ev.Type), Payload: ev})
	if err != nil {
		return message{}, err
	}
	return message{id: ev.ID, event: string(ev.Type), data: data}, nil
}

// Forward is a comms.Handler that relays bus events to subscribers. A
// subscriber whose buffer is full misses the event.
func (h *Hub) Forward(_ context.Context, ev *comms.Event) error {
	msg, err := encode(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(ev.Entity) {
			continue
		}
		select {
		case s.out <- msg:
		default:
			n := h.dropped.Add(1)
			h.logger.Debug("sse subscriber behind, event dropped",
				slog.String("event", ev.ID), slog.Uint64("dropped_total", n))
		}
	}
	return nil
}

// Clients returns the number of connected streams.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many events slow subscribers have missed so far.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// missed returns the events after lastID for s, if history is available and
// still holds lastID.
func (h *Hub) missed(s *subscriber, lastID string) []message {
	h.mu.RLock()
	history := h.history
	h.mu.RUnlock()
	if history == nil || lastID == "" {
		return nil
	}
	events, err := history(s.entity, replayLimit)
	if err != nil {
		h.logger.Warn("sse replay", slog.Any("err", err))
		return nil
	}
	start := -1
	for i, ev := range events {
		if ev.ID == lastID {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	var out []message
	for _, ev := range events[start:] {
		if msg, err := encode(ev); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

func writeMessage(w http.ResponseWriter, msg message) {
	if msg.id != "" {
		fmt.Fprintf(w, "id: %s\n", msg.id) //nolint:errcheck
	}
	if msg.event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.event) //nolint:errcheck
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.data) //nolint:errcheck
}

// ServeSSE streams events until the client goes away. The "entity" query
// parameter limits the stream to one list plus events that name no list.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	s := &subscriber{out: make(chan message, subscriberBuffer), entity: r.URL.Query().Get("entity")}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	keepAlive := h.keepAlive
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
	}()

	writeMessage(w, message{event: "connected", data: []byte(`{"type":"connected"}`)})

	// Replayed events may also arrive on s.out if they were published after
	// the subscriber registered; those are skipped.
	replayed := make(map[string]struct{})
	for _, msg := range h.missed(s, r.Header.Get("Last-Event-ID")) {
		replayed[msg.id] = struct{}{}
		writeMessage(w, msg)
	}
	flusher.Flush()

	var tick <-chan time.Time
	if keepAlive > 0 {
		t := time.NewTicker(keepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-tick:
			fmt.Fprint(w, ": ping\n\n") //nolint:errcheck
			flusher.Flush()
		case msg := <-s.out:
			if _, dup := replayed[msg.id]; dup {
				delete(replayed, msg.id)
				continue
			}
			writeMessage(w, msg)
			flusher.Flush()
		}
	}
}
