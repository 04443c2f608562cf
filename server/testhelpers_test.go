package server

import (
	"context"

	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/reconcile"
	"github.com/GoCodeAlone/todomagic/server/api"
	"github.com/GoCodeAlone/todomagic/task"
)

// noopListManager satisfies api.ListManager for tests.
type noopListManager struct{}

func (n *noopListManager) Lists() []api.ListInfo { return nil }
func (n *noopListManager) Items(_ context.Context, _ string) ([]task.Item, error) {
	return nil, nil
}
func (n *noopListManager) AddItem(_ context.Context, _ string, _ task.AddRequest) error { return nil }
func (n *noopListManager) Submit(_ string, _ reconcile.JobKind) (bool, error)          { return true, nil }
func (n *noopListManager) RebuildSmartLists() (bool, error)                            { return true, nil }
func (n *noopListManager) Preview(_ string) reconcile.Preview {
	return reconcile.Preview{}
}
func (n *noopListManager) Guards() reconcile.GuardSnapshot { return reconcile.GuardSnapshot{} }
func (n *noopListManager) Workers() []reconcile.WorkerInfo   { return nil }

// noopBus satisfies comms.Bus for tests.
type noopBus struct{}

func (n *noopBus) Publish(_ context.Context, _ *comms.Event) error           { return nil }
func (n *noopBus) Subscribe(_ string, _ comms.Handler) (unsubscribe func()) { return func() {} }
func (n *noopBus) History(_ string, _ int) ([]*comms.Event, error)           { return nil, nil }
