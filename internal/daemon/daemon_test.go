package daemon

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/config"
	"github.com/GoCodeAlone/todomagic/task"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.DataDir = t.TempDir()
	cfg.PollInterval = "20ms"
	cfg.Lists = []config.ListConfig{{Entity: "todo.chores", AutoDue: true, AutoSort: true, Recurrence: true}}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestConversions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lists = append(cfg.Lists, config.ListConfig{Entity: "todo.bills", AutoClear: true, AutoClearDays: 3})

	opts := ListOptions(cfg)
	if len(opts) != 2 || !opts["todo.chores"].Recurrence || opts["todo.bills"].AutoClearDays != 3 {
		t.Errorf("ListOptions = %+v", opts)
	}

	if s := SmartLists(cfg); len(s.All()) != 0 {
		t.Errorf("disabled smart lists = %+v", s)
	}
	cfg.SmartLists = config.SmartListConfig{Enabled: true, Daily: "todo.today", Monthly: "todo.month"}
	s := SmartLists(cfg)
	if s.Daily != "todo.today" || s.Monthly != "todo.month" || s.Weekly != "" {
		t.Errorf("SmartLists = %+v", s)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Host.Kind = "ftp"
	if _, err := New(cfg, quietLogger(), Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_LocalStorePath(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, quietLogger(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()
	if _, ok := d.Host().(*task.SQLiteStore); !ok {
		t.Fatalf("host = %T, want *task.SQLiteStore", d.Host())
	}
	if want := filepath.Join(cfg.DataDir, "lists.db"); cfg.DBPath() != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath(), want)
	}
}

func TestRun_SchedulesAddedItemAndReloads(t *testing.T) {
	cfg := testConfig(t)
	level := new(slog.LevelVar)
	d, err := New(cfg, quietLogger(), Options{
		Clock:   clock.NewFake(time.Date(2025, 6, 16, 9, 0, 0, 0, time.Local)),
		Level:   level,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Let the poller record its baseline before the list changes.
	time.Sleep(100 * time.Millisecond)
	if err := d.Host().AddItem(ctx, "todo.chores", task.AddRequest{Summary: "wash dog in 5d"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "scheduled item", func() bool {
		items, _ := d.Host().GetItems(context.Background(), "todo.chores")
		return len(items) == 1 && items[0].Summary == "wash dog" && items[0].Due == "2025-06-21 23:59"
	})

	next := testConfig(t)
	next.LogLevel = "debug"
	next.SmartLists = config.SmartListConfig{Enabled: true, Daily: "todo.today"}
	if err := d.Apply(ctx, next); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if !d.Engine().SmartLists().Contains("todo.today") {
		t.Error("smart lists not applied")
	}
	evs, _ := d.Bus().History("", 100)
	found := false
	for _, ev := range evs {
		if ev.Type == comms.TypeConfigReloaded {
			found = true
		}
	}
	if !found {
		t.Error("no config_reloaded event")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
