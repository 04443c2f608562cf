package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/todomagic/reconcile"
	"github.com/GoCodeAlone/todomagic/task"
)

// Manager implements ListManager on top of the reconciliation engine, its
// dispatcher and the list host.
type Manager struct {
	engine     *reconcile.Engine
	dispatcher *reconcile.Dispatcher
	host       task.Host
}

// NewListManager creates a Manager.
func NewListManager(engine *reconcile.Engine, dispatcher *reconcile.Dispatcher, host task.Host) *Manager {
	return &Manager{engine: engine, dispatcher: dispatcher, host: host}
}

func (m *Manager) known(entity string) bool {
	if _, ok := m.engine.Options(entity); ok {
		return true
	}
	return m.engine.SmartLists().Contains(entity)
}

// Lists returns managed lists in sorted order followed by the smart lists.
func (m *Manager) Lists() []ListInfo {
	workers := make(map[string]reconcile.WorkerInfo)
	for _, w := range m.dispatcher.Workers() {
		workers[w.Entity] = w
	}

	var out []ListInfo
	for _, entity := range m.engine.Lists() {
		info := ListInfo{Entity: entity}
		if opts, ok := m.engine.Options(entity); ok {
			info.Options = &opts
		}
		if w, ok := workers[entity]; ok {
			info.Worker = &w
		}
		out = append(out, info)
	}
	smartWorker, hasSmart := workers[reconcile.SmartListsWorker]
	for _, entity := range m.engine.SmartLists().All() {
		info := ListInfo{Entity: entity, Smart: true}
		if hasSmart {
			w := smartWorker
			info.Worker = &w
		}
		out = append(out, info)
	}
	return out
}

// Items returns the items of a known list.
func (m *Manager) Items(ctx context.Context, entity string) ([]task.Item, error) {
	if !m.known(entity) {
		return nil, fmt.Errorf("%s: %w", entity, ErrUnknownList)
	}
	items, err := m.host.GetItems(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	return items, nil
}

// AddItem adds an item to a managed list. The poller sees the new count and
// schedules the item like any other.
func (m *Manager) AddItem(ctx context.Context, entity string, req task.AddRequest) error {
	if _, ok := m.engine.Options(entity); !ok {
		return fmt.Errorf("%s: %w", entity, ErrUnknownList)
	}
	if strings.TrimSpace(req.Summary) == "" {
		return fmt.Errorf("summary is required")
	}
	if err := m.host.AddItem(ctx, entity, req); err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	return nil
}

// Submit queues a job on entity's worker.
func (m *Manager) Submit(entity string, kind reconcile.JobKind) (bool, error) {
	if kind != reconcile.JobSmartLists {
		if _, ok := m.engine.Options(entity); !ok {
			return false, fmt.Errorf("%s: %w", entity, ErrUnknownList)
		}
	}
	return m.dispatcher.Submit(entity, kind)
}

// RebuildSmartLists queues a smart-list rebuild.
func (m *Manager) RebuildSmartLists() (bool, error) {
	if len(m.engine.SmartLists().All()) == 0 {
		return false, fmt.Errorf("smart lists: %w", ErrUnknownList)
	}
	return m.dispatcher.RebuildSmartLists()
}

// Preview shows how a title would be processed.
func (m *Manager) Preview(title string) reconcile.Preview {
	return m.engine.Preview(title)
}

// Guards returns the current guard state.
func (m *Manager) Guards() reconcile.GuardSnapshot {
	return m.engine.Guards().Snapshot()
}

// Workers describes the dispatcher's workers.
func (m *Manager) Workers() []reconcile.WorkerInfo {
	return m.dispatcher.Workers()
}
