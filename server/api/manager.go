// Package api defines the REST API handlers and interfaces for the todomagic server.
package api

import (
	"context"
	"errors"

	"github.com/GoCodeAlone/todomagic/reconcile"
	"github.com/GoCodeAlone/todomagic/task"
)

// ErrUnknownList is returned for an entity that is neither managed nor a smart list.
var ErrUnknownList = errors.New("unknown list")

// ListManager is the interface the API uses to inspect and drive lists.
// Implemented by Manager.
type ListManager interface {
	Lists() []ListInfo
	Items(ctx context.Context, entity string) ([]task.Item, error)
	AddItem(ctx context.Context, entity string, req task.AddRequest) error
	Submit(entity string, kind reconcile.JobKind) (bool, error)
	RebuildSmartLists() (bool, error)
	Preview(title string) reconcile.Preview
	Guards() reconcile.GuardSnapshot
	Workers() []reconcile.WorkerInfo
}

// ListInfo describes one list the daemon knows about.
type ListInfo struct {
	Entity  string                 `json:"entity"`
	Smart   bool                   `json:"smart"`
	Options *reconcile.ListOptions `json:"options,omitempty"`
	Worker  *reconcile.WorkerInfo  `json:"worker,omitempty"`
}
