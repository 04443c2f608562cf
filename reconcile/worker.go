package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobKind identifies the work a worker runs for its entity.
type JobKind string

const (
	JobNewItems    JobKind = "new_items"
	JobCompletions JobKind = "completions"
	JobSort        JobKind = "sort"
	JobClear       JobKind = "clear"
	JobSmartLists  JobKind = "smart_lists"
)

// ParseJobKind validates a job name.
func ParseJobKind(s string) (JobKind, error) {
	switch k := JobKind(s); k {
	case JobNewItems, JobCompletions, JobSort, JobClear, JobSmartLists:
		return k, nil
	}
	return "", fmt.Errorf("unknown job %q", s)
}

// Status is the lifecycle state of a Worker.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusStopped Status = "stopped"
)

// Runner executes one job for an entity.
type Runner func(ctx context.Context, entity string, kind JobKind) (Report, error)

// WorkerInfo describes a worker for the API.
type WorkerInfo struct {
	Entity     string    `json:"entity"`
	Status     Status    `json:"status"`
	CurrentJob JobKind   `json:"current_job,omitempty"`
	Pending    []JobKind `json:"pending,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Processed  int       `json:"processed"`
	LastError  string    `json:"last_error,omitempty"`
}

// Worker runs the jobs of one entity one at a time, in submission order.
// A job kind that is already waiting is not queued twice.
type Worker struct {
	mu        sync.RWMutex
	entity    string
	run       Runner
	logger    *slog.Logger
	status    Status
	startedAt time.Time
	current   JobKind
	pending   []JobKind
	processed int
	lastErr   string

	queue  chan JobKind
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a stopped worker for entity.
func NewWorker(entity string, run Runner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		entity: entity,
		run:    run,
		logger: logger,
		status: StatusIdle,
		queue:  make(chan JobKind, 64),
	}
}

// Info returns the worker's current state.
func (w *Worker) Info() WorkerInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerInfo{
		Entity:     w.entity,
		Status:     w.status,
		CurrentJob: w.current,
		Pending:    append([]JobKind(nil), w.pending...),
		StartedAt:  w.startedAt,
		Processed:  w.processed,
		LastError:  w.lastErr,
	}
}

// Start begins the worker loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker %s already running (status=%s)", w.entity, w.status)
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.status = StatusIdle
	w.startedAt = time.Now()
	done := w.done
	w.mu.Unlock()

	go w.loop(ctx, done)
	return nil
}

// Stop cancels the loop and waits for the running job to return or ctx to end.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("stop worker %s: %w", w.entity, ctx.Err())
	}
	w.mu.Lock()
	w.status = StatusStopped
	w.mu.Unlock()
	return nil
}

// Submit queues kind. It returns false when the same kind was already waiting.
func (w *Worker) Submit(kind JobKind) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.pending {
		if p == kind {
			return false, nil
		}
	}
	select {
	case w.queue <- kind:
		w.pending = append(w.pending, kind)
		return true, nil
	default:
		return false, fmt.Errorf("worker %s job queue full", w.entity)
	}
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case kind := <-w.queue:
			w.process(ctx, kind)
		}
	}
}

func (w *Worker) process(ctx context.Context, kind JobKind) {
	w.mu.Lock()
	for i, p := range w.pending {
		if p == kind {
			w.pending = append(w.pending[:i], w.pending[i+1:]...)
			break
		}
	}
	w.status = StatusWorking
	w.current = kind
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.status = StatusIdle
		w.current = ""
		w.processed++
		w.mu.Unlock()
	}()

	rep, err := w.run(ctx, w.entity, kind)
	if err != nil {
		w.logger.Error("job failed", slog.String("entity", w.entity), slog.String("job", string(kind)), slog.Any("err", err))
		w.mu.Lock()
		w.lastErr = err.Error()
		w.mu.Unlock()
		return
	}
	if len(rep.Actions) > 0 || rep.Skipped != "" {
		w.logger.Debug("job done", slog.String("entity", w.entity), slog.String("job", string(kind)),
			slog.Int("actions", len(rep.Actions)), slog.Int("failed", rep.Failed()), slog.String("skipped", rep.Skipped))
	}
}
