package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/lists"
	"github.com/GoCodeAlone/todomagic/repeat"
	"github.com/GoCodeAlone/todomagic/task"
)

func TestProcessNewItems_WashDog(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.chores", task.Item{Summary: "wash dog in 5d"})
	e, _ := newTestEngine(t, host, at(2025, 6, 16, 9, 41))

	rep, err := e.ProcessNewItems(context.Background(), "todo.chores")
	if err != nil {
		t.Fatalf("ProcessNewItems: %v", err)
	}
	if len(rep.Actions) != 1 || rep.Failed() != 0 {
		t.Fatalf("actions = %+v", rep.Actions)
	}
	got := host.snapshot("todo.chores")[0]
	if got.Summary != "wash dog" {
		t.Errorf("Summary = %q, want wash dog", got.Summary)
	}
	if got.Due != "2025-06-21 23:59" {
		t.Errorf("Due = %q, want 2025-06-21 23:59", got.Due)
	}
}

func TestProcessNewItems_GymKeepsToken(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.chores", task.Item{Summary: "gym workout [w-mwf]"})
	e, _ := newTestEngine(t, host, at(2025, 6, 17, 12, 0))

	if _, err := e.ProcessNewItems(context.Background(), "todo.chores"); err != nil {
		t.Fatalf("ProcessNewItems: %v", err)
	}
	got := host.snapshot("todo.chores")[0]
	if got.Summary != "gym workout [w-mwf]" || got.Due != "2025-06-18 23:59" {
		t.Errorf("item = %+v", got)
	}
}

func TestProcessNewItems_SkipsNonCandidates(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.chores",
		task.Item{Summary: "buy milk"},
		task.Item{Summary: "already tomorrow", Due: "2025-06-17"},
		task.Item{Summary: "done tomorrow", Status: task.StatusCompleted},
		task.Item{Summary: "pay rent [m]"},
	)
	e, _ := newTestEngine(t, host, at(2025, 6, 16, 9, 0))
	e.Guards().MarkCreated("todo.chores", "pay rent [m]")

	rep, err := e.ProcessNewItems(context.Background(), "todo.chores")
	if err != nil {
		t.Fatalf("ProcessNewItems: %v", err)
	}
	if len(rep.Actions) != 0 {
		t.Errorf("actions = %+v, want none", rep.Actions)
	}
}

func TestProcessNewItems_AllCandidatesAndSiblingFailure(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.chores",
		task.Item{UID: "a", Summary: "call mom tomorrow"},
		task.Item{UID: "b", Summary: "water plants in 2d"},
	)
	host.failOn["update:a"] = errors.New("service unavailable")
	e, _ := newTestEngine(t, host, at(2025, 6, 16, 9, 0))

	rep, err := e.ProcessNewItems(context.Background(), "todo.chores")
	if err != nil {
		t.Fatalf("ProcessNewItems: %v", err)
	}
	if len(rep.Actions) != 2 || rep.Failed() != 1 {
		t.Fatalf("actions = %+v", rep.Actions)
	}
	if rep.Actions[0].Stage != StageMutate || rep.Actions[0].Err == "" {
		t.Errorf("first action = %+v, want failed mutate", rep.Actions[0])
	}
	items := host.snapshot("todo.chores")
	if items[1].Summary != "water plants" || items[1].Due != "2025-06-18 23:59" {
		t.Errorf("sibling = %+v", items[1])
	}
}

func TestProcessNewItems_BusyEntityIsSkipped(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.chores", task.Item{Summary: "wash dog in 5d"})
	e, _ := newTestEngine(t, host, at(2025, 6, 16, 9, 0))

	if !e.Guards().TryAcquire("todo.chores") {
		t.Fatal("TryAcquire failed")
	}
	rep, err := e.ProcessNewItems(context.Background(), "todo.chores")
	if err != nil {
		t.Fatalf("ProcessNewItems: %v", err)
	}
	if rep.Skipped == "" || len(host.callLog()) != 0 {
		t.Errorf("expected skip without host calls, got %+v / %v", rep, host.callLog())
	}
	e.Guards().Release("todo.chores")

	// Released after a run, including a failed one.
	host.failOn["get:todo.chores"] = errors.New("boom")
	if _, err := e.ProcessNewItems(context.Background(), "todo.chores"); err == nil {
		t.Error("expected fetch error")
	}
	if len(e.Guards().Snapshot().Processing) != 0 {
		t.Error("processing guard not released after failure")
	}
}

func TestProcessCompletions_PayRent(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.bills", task.Item{UID: "r1", Summary: "pay rent [m]", Status: task.StatusCompleted, Due: "2025-07-15"})
	e, _ := newTestEngine(t, host, at(2025, 7, 10, 10, 0))

	rep, err := e.ProcessCompletions(context.Background(), "todo.bills")
	if err != nil {
		t.Fatalf("ProcessCompletions: %v", err)
	}
	if rep.Failed() != 0 {
		t.Fatalf("failed actions: %+v", rep.Actions)
	}
	items := host.snapshot("todo.bills")
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Summary != "pay rent" || !items[0].Completed() {
		t.Errorf("completed item = %+v, want token stripped", items[0])
	}
	if items[1].Summary != "pay rent [m]" || items[1].Due != "2025-08-31 23:59" || items[1].Completed() {
		t.Errorf("successor = %+v", items[1])
	}
	if !e.Guards().IsCreated("todo.bills", "pay rent [m]") {
		t.Error("successor not marked as just created")
	}

	// The strip must happen before the successor is added.
	log := strings.Join(host.callLog(), ",")
	if strings.Index(log, "update todo.bills r1") > strings.Index(log, "add todo.bills") {
		t.Errorf("call order = %s", log)
	}
}

func TestProcessCompletions_DuplicateTriggerCreatesOneSuccessor(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.bills", task.Item{UID: "r1", Summary: "pay rent [m]", Status: task.StatusCompleted, Due: "2025-07-15"})
	// The rename keeps failing, so the completed item still carries its token.
	host.failOn["update:r1"] = errors.New("timeout")
	e, _ := newTestEngine(t, host, at(2025, 7, 10, 10, 0))

	for i := 0; i < 2; i++ {
		if _, err := e.ProcessCompletions(context.Background(), "todo.bills"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	adds := 0
	for _, c := range host.callLog() {
		if strings.HasPrefix(c, "add ") {
			adds++
		}
	}
	if adds != 1 {
		t.Errorf("adds = %d, want 1", adds)
	}
}

func TestProcessCompletions_ExistingSuccessorAfterRestart(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.bills",
		task.Item{UID: "r1", Summary: "pay rent [m]", Status: task.StatusCompleted, Due: "2025-07-15"},
		task.Item{UID: "r2", Summary: "pay rent [m]", Due: "2025-08-31 23:59"},
	)
	e, _ := newTestEngine(t, host, at(2025, 7, 10, 10, 0))

	rep, err := e.ProcessCompletions(context.Background(), "todo.bills")
	if err != nil {
		t.Fatalf("ProcessCompletions: %v", err)
	}
	for _, a := range rep.Actions {
		if a.Kind == ActionCreateNext || a.Kind == ActionUpdateNext {
			t.Errorf("unexpected %s", a.Kind)
		}
	}
	if n := len(host.snapshot("todo.bills")); n != 2 {
		t.Errorf("items = %d, want 2", n)
	}
}

func TestProcessCompletions_ExistingSuccessorWrongDue(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.bills",
		task.Item{UID: "r1", Summary: "pay rent [m]", Status: task.StatusCompleted, Due: "2025-07-15"},
		task.Item{UID: "r2", Summary: "pay rent [m]", Due: "2025-08-01"},
	)
	e, _ := newTestEngine(t, host, at(2025, 7, 10, 10, 0))

	if _, err := e.ProcessCompletions(context.Background(), "todo.bills"); err != nil {
		t.Fatalf("ProcessCompletions: %v", err)
	}
	items := host.snapshot("todo.bills")
	if len(items) != 2 || items[1].Due != "2025-08-31 23:59" {
		t.Errorf("items = %+v", items)
	}
}

func TestProcessCompletions_CarriesTimeOfDay(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.gym", task.Item{Summary: "swim [w-wf]", Status: task.StatusCompleted, Due: "2025-01-15 07:30"})
	e, _ := newTestEngine(t, host, at(2025, 1, 14, 18, 0))

	if _, err := e.ProcessCompletions(context.Background(), "todo.gym"); err != nil {
		t.Fatalf("ProcessCompletions: %v", err)
	}
	items := host.snapshot("todo.gym")
	if len(items) != 2 || items[1].Due != "2025-01-17 07:30" {
		t.Errorf("items = %+v", items)
	}
}

func TestProcessCompletions_MissingDueUsesCompletionDay(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.home", task.Item{Summary: "water plants [3d]", Status: task.StatusCompleted})
	e, _ := newTestEngine(t, host, at(2025, 6, 16, 8, 0))

	if _, err := e.ProcessCompletions(context.Background(), "todo.home"); err != nil {
		t.Fatalf("ProcessCompletions: %v", err)
	}
	items := host.snapshot("todo.home")
	if len(items) != 2 || items[1].Due != "2025-06-19 23:59" {
		t.Errorf("items = %+v", items)
	}
}

func TestProcessCompletions_IgnoresMalformedAndOpen(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.home",
		task.Item{Summary: "thing [zz]", Status: task.StatusCompleted},
		task.Item{Summary: "open [d]"},
		task.Item{Summary: "plain", Status: task.StatusCompleted},
	)
	e, _ := newTestEngine(t, host, at(2025, 6, 16, 8, 0))

	rep, _ := e.ProcessCompletions(context.Background(), "todo.home")
	if len(rep.Actions) != 0 {
		t.Errorf("actions = %+v", rep.Actions)
	}
}

func TestProcessCompletions_SkipsSmartLists(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.daily", task.Item{Summary: "pay rent [m]", Status: task.StatusCompleted})
	e, _ := newTestEngine(t, host, at(2025, 7, 10, 10, 0))
	e.Configure(nil, lists.SmartLists{Daily: "todo.daily"})

	rep, _ := e.ProcessCompletions(context.Background(), "todo.daily")
	if rep.Skipped != "smart list" || len(host.callLog()) != 0 {
		t.Errorf("rep = %+v, calls = %v", rep, host.callLog())
	}
}

func TestSortList_SQLiteStore(t *testing.T) {
	store, err := task.NewSQLiteStore(filepath.Join(t.TempDir(), "items.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	add := func(summary string, due *task.Due) {
		if err := store.AddItem(ctx, "todo.home", task.AddRequest{Summary: summary, Due: due}); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}
	d := func(s string) *task.Due {
		v, err := task.ParseDue(s, time.Local)
		if err != nil {
			t.Fatal(err)
		}
		return &v
	}
	add("c", d("2025-06-30"))
	add("nodue", nil)
	add("a", d("2025-06-10"))
	add("b", d("2025-06-20 10:00"))

	e, _ := newTestEngine(t, store, at(2025, 6, 1, 0, 0))
	rep, err := e.SortList(ctx, "todo.home")
	if err != nil {
		t.Fatalf("SortList: %v", err)
	}
	if rep.Failed() != 0 || len(rep.Actions) == 0 {
		t.Errorf("actions = %+v", rep.Actions)
	}
	items, _ := store.GetItems(ctx, "todo.home")
	if got := summaries(items); !equalStrings(got, []string{"a", "b", "c", "nodue"}) {
		t.Errorf("order = %v", got)
	}

	// Sorting a sorted list is a no-op.
	rep, _ = e.SortList(ctx, "todo.home")
	if len(rep.Actions) != 0 {
		t.Errorf("second sort actions = %+v", rep.Actions)
	}
}

func TestSortList_UnsupportedLeavesOrder(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.home",
		task.Item{Summary: "late", Due: "2025-06-30"},
		task.Item{Summary: "early", Due: "2025-06-10"},
	)
	host.moveErr = errors.New("Entity todo.home does not support moving items")
	e, _ := newTestEngine(t, host, at(2025, 6, 1, 0, 0))

	rep, err := e.SortList(context.Background(), "todo.home")
	if err != nil {
		t.Fatalf("SortList: %v", err)
	}
	if rep.Skipped != "reorder unsupported" || len(rep.Actions) != 1 {
		t.Errorf("rep = %+v", rep)
	}
	if got := summaries(host.snapshot("todo.home")); !equalStrings(got, []string{"late", "early"}) {
		t.Errorf("order changed: %v", got)
	}
}

func TestSortList_FailedMoveDoesNotStopTheRest(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.home",
		task.Item{UID: "c", Summary: "c", Due: "2025-06-30"},
		task.Item{UID: "b", Summary: "b", Due: "2025-06-20"},
		task.Item{UID: "a", Summary: "a", Due: "2025-06-10"},
	)
	planned := lists.PlanMoves(host.snapshot("todo.home"), time.Local)
	if len(planned) < 2 {
		t.Fatalf("need at least two planned moves, got %+v", planned)
	}
	host.failOn["move:"+planned[0].UID] = errors.New("503 service temporarily unavailable")
	e, _ := newTestEngine(t, host, at(2025, 6, 1, 0, 0))

	rep, err := e.SortList(context.Background(), "todo.home")
	if err != nil {
		t.Fatalf("SortList: %v", err)
	}
	var moves int
	for _, c := range host.callLog() {
		if strings.HasPrefix(c, "move ") {
			moves++
		}
	}
	if moves != len(planned) {
		t.Errorf("moves attempted = %d, want %d (calls %v)", moves, len(planned), host.callLog())
	}
	if rep.Failed() != 1 || rep.Skipped != "" {
		t.Errorf("rep = %+v", rep)
	}
}

func TestClearCompleted(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.home",
		task.Item{UID: "old", Summary: "old", Status: task.StatusCompleted, Due: "2025-06-01"},
		task.Item{UID: "new", Summary: "new", Status: task.StatusCompleted, Due: "2025-06-17"},
		task.Item{UID: "open", Summary: "open"},
	)
	e, _ := newTestEngine(t, host, at(2025, 6, 18, 0, 5))

	rep, err := e.ClearCompleted(context.Background(), "todo.home", 7)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if len(rep.Actions) != 1 || rep.Actions[0].Kind != ActionRemove {
		t.Errorf("actions = %+v", rep.Actions)
	}
	if got := summaries(host.snapshot("todo.home")); !equalStrings(got, []string{"new", "open"}) {
		t.Errorf("items = %v", got)
	}
}

func TestClearCompleted_BulkAndFallback(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.home",
		task.Item{Summary: "old", Status: task.StatusCompleted, Due: "2025-06-01"},
		task.Item{Summary: "open"},
	)
	e, _ := newTestEngine(t, host, at(2025, 6, 18, 0, 5))

	rep, _ := e.ClearCompleted(context.Background(), "todo.home", 7)
	if len(rep.Actions) != 1 || rep.Actions[0].Kind != ActionClearAll {
		t.Errorf("actions = %+v", rep.Actions)
	}

	host.seed("todo.home", task.Item{Summary: "older", Status: task.StatusCompleted, Due: "2025-05-01"})
	host.failOn["remove_completed"] = task.ErrUnsupported
	rep, _ = e.ClearCompleted(context.Background(), "todo.home", 7)
	if len(rep.Actions) != 1 || rep.Actions[0].Kind != ActionRemove {
		t.Errorf("fallback actions = %+v", rep.Actions)
	}
	if got := summaries(host.snapshot("todo.home")); !equalStrings(got, []string{"open"}) {
		t.Errorf("items = %v", got)
	}
}

func TestRebuildSmartLists(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.home",
		task.Item{Summary: "today task", Due: "2025-06-18 23:59"},
		task.Item{Summary: "week task", Due: "2025-06-20"},
		task.Item{Summary: "month task", Due: "2025-06-28"},
		task.Item{Summary: "later", Due: "2025-07-10"},
		task.Item{Summary: "done", Status: task.StatusCompleted, Due: "2025-06-18"},
		task.Item{Summary: "nodue"},
	)
	host.seed("todo.daily",
		task.Item{Summary: "stale", Due: "2025-06-10"},
		task.Item{Summary: "old done", Status: task.StatusCompleted},
	)
	host.seed("todo.weekly", task.Item{Summary: "week task", Due: "2025-06-19"})

	e, _ := newTestEngine(t, host, at(2025, 6, 18, 10, 0))
	e.Configure(
		map[string]ListOptions{"todo.home": {}},
		lists.SmartLists{Daily: "todo.daily", Weekly: "todo.weekly", Monthly: "todo.monthly"},
	)

	rep, err := e.RebuildSmartLists(context.Background())
	if err != nil {
		t.Fatalf("RebuildSmartLists: %v", err)
	}
	if rep.Failed() != 0 {
		t.Fatalf("failed: %+v", rep.Actions)
	}

	if got := summaries(host.snapshot("todo.daily")); !equalStrings(got, []string{"old done", "today task"}) {
		t.Errorf("daily = %v", got)
	}
	weekly := host.snapshot("todo.weekly")
	if got := summaries(weekly); !equalStrings(got, []string{"week task", "today task"}) {
		t.Errorf("weekly = %v", got)
	}
	if weekly[0].Due != "2025-06-20" {
		t.Errorf("weekly due = %q, want 2025-06-20", weekly[0].Due)
	}
	if got := summaries(host.snapshot("todo.monthly")); !equalStrings(got, []string{"today task", "week task", "month task"}) {
		t.Errorf("monthly = %v", got)
	}

	// A second rebuild changes nothing.
	rep, _ = e.RebuildSmartLists(context.Background())
	if len(rep.Actions) != 0 {
		t.Errorf("second rebuild actions = %+v", rep.Actions)
	}
}

func TestRebuildSmartLists_SourceFailureKeepsMirrors(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.daily", task.Item{Summary: "keep me", Due: "2025-06-18"})
	host.failOn["get:todo.home"] = errors.New("offline")
	e, _ := newTestEngine(t, host, at(2025, 6, 18, 10, 0))
	e.Configure(map[string]ListOptions{"todo.home": {}}, lists.SmartLists{Daily: "todo.daily"})

	if _, err := e.RebuildSmartLists(context.Background()); err == nil {
		t.Error("expected error")
	}
	if n := len(host.snapshot("todo.daily")); n != 1 {
		t.Errorf("daily items = %d, want 1", n)
	}
}

func TestRebuildSmartLists_SameTitleDifferentDues(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.home", task.Item{Summary: "call dentist", Due: "2025-06-19"})
	host.seed("todo.work",
		task.Item{Summary: "call dentist", Due: "2025-06-20"},
		task.Item{Summary: "call dentist", Due: "2025-06-19"},
	)
	e, _ := newTestEngine(t, host, at(2025, 6, 18, 10, 0))
	e.Configure(
		map[string]ListOptions{"todo.home": {}, "todo.work": {}},
		lists.SmartLists{Weekly: "todo.weekly"},
	)

	if _, err := e.RebuildSmartLists(context.Background()); err != nil {
		t.Fatalf("RebuildSmartLists: %v", err)
	}
	var dues []string
	for _, it := range host.snapshot("todo.weekly") {
		if it.Summary != "call dentist" {
			t.Errorf("unexpected mirror %q", it.Summary)
		}
		dues = append(dues, it.Due)
	}
	slices.Sort(dues)
	if !equalStrings(dues, []string{"2025-06-19", "2025-06-20"}) {
		t.Errorf("weekly dues = %v, want one mirror per distinct due", dues)
	}

	rep, _ := e.RebuildSmartLists(context.Background())
	if len(rep.Actions) != 0 {
		t.Errorf("second rebuild actions = %+v", rep.Actions)
	}
}

func TestMidnight(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.bills",
		task.Item{Summary: "pay rent [m]", Status: task.StatusCompleted, Due: "2025-07-15"},
		task.Item{Summary: "ancient", Status: task.StatusCompleted, Due: "2025-01-01"},
	)
	e, _ := newTestEngine(t, host, at(2025, 7, 10, 0, 0))
	e.Configure(map[string]ListOptions{
		"todo.bills": {Recurrence: true, AutoClear: true, AutoClearDays: 7, AutoSort: true},
		"todo.plain": {},
	}, lists.SmartLists{Monthly: "todo.monthly"})

	jobs := e.MidnightJobs()
	want := []Job{
		{"todo.bills", JobCompletions},
		{"todo.bills", JobClear},
		{"todo.bills", JobSort},
		{"", JobSmartLists},
	}
	if len(jobs) != len(want) {
		t.Fatalf("jobs = %+v", jobs)
	}
	for i := range want {
		if jobs[i] != want[i] {
			t.Errorf("jobs[%d] = %+v, want %+v", i, jobs[i], want[i])
		}
	}

	reports, err := e.Midnight(context.Background())
	if err != nil {
		t.Fatalf("Midnight: %v", err)
	}
	if len(reports) != 4 {
		t.Errorf("reports = %d, want 4", len(reports))
	}
	// Only "ancient" is old enough to clear; the stripped instance was due
	// after the cutoff.
	if got := summaries(host.snapshot("todo.bills")); !equalStrings(got, []string{"pay rent", "pay rent [m]"}) {
		t.Errorf("bills = %v", got)
	}
}

func TestPreview(t *testing.T) {
	e, _ := newTestEngine(t, newFakeHost(), at(2025, 6, 16, 9, 41))

	p := e.Preview("wash dog in 5d")
	if !p.Candidate || p.Title != "wash dog" || !p.Due.Equal(at(2025, 6, 21, 23, 59)) {
		t.Errorf("preview = %+v", p)
	}

	p = e.Preview("pay rent [zz]")
	if p.Candidate || p.TokenError == "" || p.Title != "pay rent [zz]" {
		t.Errorf("preview = %+v", p)
	}
}

func TestActionsArePublished(t *testing.T) {
	host := newFakeHost()
	host.seed("todo.chores", task.Item{Summary: "wash dog in 5d"})
	bus := comms.NewInMemoryBus()
	e := NewEngine(host, NewGuards(time.Minute), nil, bus, quietLogger())
	e.clock = fixedClock(at(2025, 6, 16, 9, 41))

	if _, err := e.ProcessNewItems(context.Background(), "todo.chores"); err != nil {
		t.Fatalf("ProcessNewItems: %v", err)
	}
	hist, _ := bus.History("todo.chores", 0)
	if len(hist) != 1 {
		t.Fatalf("events = %d, want 1", len(hist))
	}
	ev := hist[0]
	if ev.Type != comms.TypeAction || ev.Detail != string(ActionSchedule) || ev.Metadata["due"] != "2025-06-21 23:59" {
		t.Errorf("event = %+v", ev)
	}
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestNextDue(t *testing.T) {
	monthly, _ := repeat.Parse("[m]")
	daily, _ := repeat.Parse("[d]")
	completed := at(2025, 7, 10, 9, 30)

	prior := task.DateOnly(at(2025, 7, 15, 0, 0))
	if got, ok := NextDue(completed, prior, true, monthly); !ok || got.String() != "2025-08-31 23:59" {
		t.Errorf("monthly = %v %v", got, ok)
	}

	timed := task.DateTime(at(2025, 7, 9, 7, 15))
	if got, ok := NextDue(completed, timed, true, daily); !ok || got.String() != "2025-07-11 07:15" {
		t.Errorf("daily late = %v %v", got, ok)
	}

	// No prior due: the completion day stands in and the time is end of day.
	if got, ok := NextDue(completed, task.Due{}, false, daily); !ok || got.String() != "2025-07-11 23:59" {
		t.Errorf("daily without due = %v %v", got, ok)
	}
}
