package hass

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/todomagic/task"
)

type recorded struct {
	Path string
	Body map[string]any
}

type fakeHA struct {
	mu    sync.Mutex
	calls []recorded
	srv   *httptest.Server
}

func newFakeHA(t *testing.T, handler http.HandlerFunc) *fakeHA {
	t.Helper()
	f := &fakeHA{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		f.mu.Lock()
		f.calls = append(f.calls, recorded{Path: r.URL.RequestURI(), Body: body})
		f.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeHA) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no calls recorded")
	}
	return f.calls[len(f.calls)-1]
}

// lastBody is last for use inside handlers, where t.Fatal must not run.
func (f *fakeHA) lastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1].Body
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`[]`))
}

func TestClient_State(t *testing.T) {
	ha := newFakeHA(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/states/todo.chores" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"entity_id":"todo.chores","state":"3"}`))
	})
	c := New(ha.srv.URL+"/", "secret", time.Second)

	state, err := c.State(context.Background(), "todo.chores")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != "3" {
		t.Errorf("state = %q, want 3", state)
	}
}

// haItems mimics todo.get_items: with no status filter only open items come back.
var haItems = []task.Item{
	{UID: "1", Summary: "wash dog", Status: task.StatusNeedsAction, Due: "2025-06-21"},
	{UID: "2", Summary: "pay rent [m]", Status: task.StatusCompleted},
}

func filterByStatus(body map[string]any) []task.Item {
	want := map[string]bool{string(task.StatusNeedsAction): true}
	if raw, ok := body["status"].([]any); ok {
		want = map[string]bool{}
		for _, s := range raw {
			if str, ok := s.(string); ok {
				want[str] = true
			}
		}
	}
	var out []task.Item
	for _, it := range haItems {
		if want[string(it.Status)] {
			out = append(out, it)
		}
	}
	return out
}

func TestClient_GetItems(t *testing.T) {
	var ha *fakeHA
	ha = newFakeHA(t, func(w http.ResponseWriter, _ *http.Request) {
		items := filterByStatus(ha.lastBody())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"changed_states":   []any{},
			"service_response": map[string]any{"todo.chores": map[string]any{"items": items}},
		})
	})
	c := New(ha.srv.URL, "secret", 0)

	items, err := c.GetItems(context.Background(), "todo.chores")
	if err != nil {
		t.Fatalf("GetItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2 (completed items must be requested)", len(items))
	}
	if items[0].Due != "2025-06-21" || items[1].Status != task.StatusCompleted {
		t.Errorf("items = %+v", items)
	}
	call := ha.last(t)
	if call.Path != "/api/services/todo/get_items?return_response" {
		t.Errorf("path = %q", call.Path)
	}
	if call.Body["entity_id"] != "todo.chores" {
		t.Errorf("body = %v", call.Body)
	}
}

func TestClient_GetItemsRequestsEveryStatus(t *testing.T) {
	ha := newFakeHA(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"service_response": {"todo.chores": {"items": []}}}`))
	})
	c := New(ha.srv.URL, "secret", 0)
	if _, err := c.GetItems(context.Background(), "todo.chores"); err != nil {
		t.Fatalf("GetItems: %v", err)
	}

	raw, ok := ha.last(t).Body["status"].([]any)
	if !ok {
		t.Fatalf("get_items sent no status filter: %v", ha.last(t).Body)
	}
	got := map[any]bool{}
	for _, s := range raw {
		got[s] = true
	}
	if !got["needs_action"] || !got["completed"] || len(raw) != 2 {
		t.Errorf("status = %v, want needs_action and completed", raw)
	}
}

func TestClient_UpdateItemSendsOneDueField(t *testing.T) {
	ha := newFakeHA(t, ok)
	c := New(ha.srv.URL, "secret", 0)
	ctx := context.Background()

	rename := "wash dog"
	due := task.DateTime(time.Date(2025, 6, 21, 23, 59, 0, 0, time.Local))
	if err := c.UpdateItem(ctx, "todo.chores", task.UpdateRequest{Match: "uid-1", Rename: &rename, Due: &due}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	call := ha.last(t)
	if call.Path != "/api/services/todo/update_item" {
		t.Errorf("path = %q", call.Path)
	}
	if call.Body["item"] != "uid-1" || call.Body["rename"] != "wash dog" {
		t.Errorf("body = %v", call.Body)
	}
	if call.Body["due_datetime"] != "2025-06-21 23:59:00" {
		t.Errorf("due_datetime = %v", call.Body["due_datetime"])
	}
	if _, both := call.Body["due_date"]; both {
		t.Error("due_date must not be sent with due_datetime")
	}

	dateOnly := task.DateOnly(time.Date(2025, 6, 21, 0, 0, 0, 0, time.Local))
	if err := c.AddItem(ctx, "todo.chores", task.AddRequest{Summary: "x", Due: &dateOnly}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	call = ha.last(t)
	if call.Body["due_date"] != "2025-06-21" {
		t.Errorf("due_date = %v", call.Body["due_date"])
	}
	if _, both := call.Body["due_datetime"]; both {
		t.Error("due_datetime must not be sent with due_date")
	}
}

func TestClient_RemoveCalls(t *testing.T) {
	ha := newFakeHA(t, ok)
	c := New(ha.srv.URL, "secret", 0)
	ctx := context.Background()

	if err := c.RemoveItem(ctx, "todo.a", "uid-9"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if call := ha.last(t); call.Path != "/api/services/todo/remove_item" || call.Body["item"] != "uid-9" {
		t.Errorf("call = %+v", call)
	}
	if err := c.RemoveCompleted(ctx, "todo.a"); err != nil {
		t.Fatalf("RemoveCompleted: %v", err)
	}
	if call := ha.last(t); call.Path != "/api/services/todo/remove_completed_items" {
		t.Errorf("path = %q", call.Path)
	}
}

func TestClient_ErrorsCarryStatus(t *testing.T) {
	ha := newFakeHA(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Entity todo.a does not support this service.", http.StatusBadRequest)
	})
	c := New(ha.srv.URL, "secret", 0)

	err := c.RemoveCompleted(context.Background(), "todo.a")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, task.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}

	bad := New(ha.srv.URL, "wrong", 0)
	err = bad.RemoveCompleted(context.Background(), "todo.a")
	if err == nil || errors.Is(err, task.ErrUnsupported) {
		t.Errorf("auth error = %v", err)
	}
}

func TestClient_MoveItemUnsupported(t *testing.T) {
	c := New("http://127.0.0.1:1", "secret", 0)
	err := c.MoveItem(context.Background(), "todo.a", "u1", "")
	if !task.IsUnsupported(err) {
		t.Errorf("err = %v, want unsupported", err)
	}
}
