package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
	"github.com/GoCodeAlone/todomagic/task"
)

// fakeHost is an in-memory task.Host that records calls and can fail them.
type fakeHost struct {
	mu       sync.Mutex
	items    map[string][]task.Item
	nextUID  int
	calls    []string
	failOn   map[string]error // "update:<match>", "add:<summary>", "get:<entity>", "move:<uid>" (once), "remove_completed"
	moveErr  error
	getDelay time.Duration
}

func newFakeHost() *fakeHost {
	return &fakeHost{items: make(map[string][]task.Item), failOn: make(map[string]error)}
}

func (h *fakeHost) seed(entity string, items ...task.Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, it := range items {
		if it.UID == "" {
			h.nextUID++
			it.UID = "u" + strconv.Itoa(h.nextUID)
		}
		if it.Status == "" {
			it.Status = task.StatusNeedsAction
		}
		h.items[entity] = append(h.items[entity], it)
	}
}

func (h *fakeHost) snapshot(entity string) []task.Item {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]task.Item(nil), h.items[entity]...)
}

func (h *fakeHost) callLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *fakeHost) find(entity, match string) int {
	for i, it := range h.items[entity] {
		if it.UID == match {
			return i
		}
	}
	for i, it := range h.items[entity] {
		if it.Summary == match {
			return i
		}
	}
	return -1
}

func (h *fakeHost) GetItems(_ context.Context, entity string) ([]task.Item, error) {
	if h.getDelay > 0 {
		time.Sleep(h.getDelay)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "get "+entity)
	if err := h.failOn["get:"+entity]; err != nil {
		return nil, err
	}
	return append([]task.Item(nil), h.items[entity]...), nil
}

func (h *fakeHost) AddItem(_ context.Context, entity string, req task.AddRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "add "+entity+" "+req.Summary)
	if err := h.failOn["add:"+req.Summary]; err != nil {
		return err
	}
	h.nextUID++
	it := task.Item{UID: "u" + strconv.Itoa(h.nextUID), Summary: req.Summary, Status: task.StatusNeedsAction}
	if req.Due != nil {
		it.Due = req.Due.String()
	}
	h.items[entity] = append(h.items[entity], it)
	return nil
}

func (h *fakeHost) UpdateItem(_ context.Context, entity string, req task.UpdateRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "update "+entity+" "+req.Match)
	if err := h.failOn["update:"+req.Match]; err != nil {
		return err
	}
	i := h.find(entity, req.Match)
	if i < 0 {
		return fmt.Errorf("update %s: %w", req.Match, task.ErrNotFound)
	}
	it := &h.items[entity][i]
	if req.Rename != nil {
		it.Summary = *req.Rename
	}
	if req.Status != nil {
		it.Status = *req.Status
	}
	if req.Due != nil {
		it.Due = req.Due.String()
	}
	return nil
}

func (h *fakeHost) RemoveItem(_ context.Context, entity, match string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "remove "+entity+" "+match)
	i := h.find(entity, match)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", match, task.ErrNotFound)
	}
	h.items[entity] = append(h.items[entity][:i], h.items[entity][i+1:]...)
	return nil
}

func (h *fakeHost) RemoveCompleted(_ context.Context, entity string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "remove_completed "+entity)
	if err := h.failOn["remove_completed"]; err != nil {
		return err
	}
	var keep []task.Item
	for _, it := range h.items[entity] {
		if !it.Completed() {
			keep = append(keep, it)
		}
	}
	h.items[entity] = keep
	return nil
}

func (h *fakeHost) MoveItem(_ context.Context, entity, uid, prev string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "move "+entity+" "+uid)
	if err := h.failOn["move:"+uid]; err != nil {
		delete(h.failOn, "move:"+uid)
		return err
	}
	if h.moveErr != nil {
		return h.moveErr
	}
	i := h.find(entity, uid)
	if i < 0 {
		return task.ErrNotFound
	}
	it := h.items[entity][i]
	rest := append(append([]task.Item(nil), h.items[entity][:i]...), h.items[entity][i+1:]...)
	at := 0
	if prev != "" {
		for j, o := range rest {
			if o.UID == prev {
				at = j + 1
			}
		}
	}
	h.items[entity] = append(rest[:at], append([]task.Item{it}, rest[at:]...)...)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func newTestEngine(t *testing.T, host task.Host, now time.Time) (*Engine, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(now)
	e := NewEngine(host, NewGuards(time.Minute), clk, nil, quietLogger())
	return e, clk
}

func summaries(items []task.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Summary
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
