package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/GoCodeAlone/todomagic/comms"
)

// SmartListsWorker is the worker key for smart-list rebuilds, which span
// several entities.
const SmartListsWorker = "smart_lists"

// Dispatcher owns one Worker per managed list and turns bus events into jobs.
type Dispatcher struct {
	engine *Engine
	bus    comms.Bus
	logger *slog.Logger

	mu      sync.RWMutex
	ctx     context.Context
	workers map[string]*Worker
	unsubs  []func()
}

// NewDispatcher creates a dispatcher for engine. bus may be nil, in which
// case jobs only arrive through Submit.
func NewDispatcher(engine *Engine, bus comms.Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		engine:  engine,
		bus:     bus,
		logger:  logger,
		workers: make(map[string]*Worker),
	}
}

// Start launches workers for the engine's lists and subscribes to triggers.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.ctx != nil {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.ctx = ctx
	d.mu.Unlock()

	if err := d.Sync(ctx); err != nil {
		return err
	}

	if d.bus != nil {
		unsubs := []func(){
			d.bus.Subscribe(string(comms.TypeCountChanged), d.onCountChanged),
			d.bus.Subscribe(string(comms.TypeStateChanged), d.onStateChanged),
			d.bus.Subscribe(string(comms.TypeMidnight), d.onMidnight),
		}
		d.mu.Lock()
		d.unsubs = unsubs
		d.mu.Unlock()
	}
	return nil
}

// Stop unsubscribes and stops every worker.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	unsubs := d.unsubs
	d.unsubs = nil
	workers := make([]*Worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.workers = make(map[string]*Worker)
	d.ctx = nil
	d.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	var errs []error
	for _, w := range workers {
		if err := w.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Sync starts workers for lists the engine manages now and stops workers for
// lists it no longer manages. Call it after Engine.Configure.
func (d *Dispatcher) Sync(ctx context.Context) error {
	want := d.engine.Lists()
	if len(d.engine.SmartLists().All()) > 0 {
		want = append(want, SmartListsWorker)
	}

	d.mu.Lock()
	runCtx := d.ctx
	if runCtx == nil {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher not running")
	}
	var started []*Worker
	for _, entity := range want {
		if _, ok := d.workers[entity]; ok {
			continue
		}
		w := NewWorker(entity, d.runner(entity), d.logger)
		d.workers[entity] = w
		started = append(started, w)
	}
	var stopped []*Worker
	for entity, w := range d.workers {
		if !slices.Contains(want, entity) {
			delete(d.workers, entity)
			stopped = append(stopped, w)
		}
	}
	d.mu.Unlock()

	for _, w := range started {
		if err := w.Start(runCtx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}
	for _, w := range stopped {
		if err := w.Stop(ctx); err != nil {
			d.logger.Warn("stop worker", slog.Any("err", err))
		}
	}
	return nil
}

func (d *Dispatcher) runner(entity string) Runner {
	if entity == SmartListsWorker {
		return func(ctx context.Context, _ string, _ JobKind) (Report, error) {
			return d.engine.RebuildSmartLists(ctx)
		}
	}
	return d.engine.Run
}

// Submit queues kind for entity. Smart-list rebuilds go to their own worker
// whatever entity is given.
func (d *Dispatcher) Submit(entity string, kind JobKind) (bool, error) {
	if kind == JobSmartLists {
		entity = SmartListsWorker
	}
	d.mu.RLock()
	w, ok := d.workers[entity]
	d.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("no worker for %s", entity)
	}
	return w.Submit(kind)
}

// RebuildSmartLists queues a smart-list rebuild.
func (d *Dispatcher) RebuildSmartLists() (bool, error) {
	return d.Submit(SmartListsWorker, JobSmartLists)
}

// Workers describes every worker, sorted by entity.
func (d *Dispatcher) Workers() []WorkerInfo {
	d.mu.RLock()
	out := make([]WorkerInfo, 0, len(d.workers))
	for _, w := range d.workers {
		out = append(out, w.Info())
	}
	d.mu.RUnlock()
	slices.SortFunc(out, func(a, b WorkerInfo) int {
		switch {
		case a.Entity < b.Entity:
			return -1
		case a.Entity > b.Entity:
			return 1
		}
		return 0
	})
	return out
}

func (d *Dispatcher) submitAll(entity string, kinds ...JobKind) {
	for _, k := range kinds {
		if _, err := d.Submit(entity, k); err != nil {
			d.logger.Warn("submit job", slog.String("entity", entity), slog.String("job", string(k)), slog.Any("err", err))
		}
	}
}

func (d *Dispatcher) smartEnabled() bool {
	return len(d.engine.SmartLists().All()) > 0
}

// onCountChanged queues work for a list whose open-item count went up.
func (d *Dispatcher) onCountChanged(_ context.Context, ev *comms.Event) error {
	opts, ok := d.engine.Options(ev.Entity)
	if !ok {
		return nil
	}
	var kinds []JobKind
	if opts.AutoDue {
		kinds = append(kinds, JobNewItems)
	}
	if opts.Recurrence {
		kinds = append(kinds, JobCompletions)
	}
	if opts.AutoSort {
		kinds = append(kinds, JobSort)
	}
	d.submitAll(ev.Entity, kinds...)
	if d.smartEnabled() {
		d.submitAll(SmartListsWorker, JobSmartLists)
	}
	return nil
}

// onStateChanged covers completions and edits, which do not raise the count.
// Without a numeric count any change may be a new item.
func (d *Dispatcher) onStateChanged(_ context.Context, ev *comms.Event) error {
	opts, ok := d.engine.Options(ev.Entity)
	if !ok {
		return nil
	}
	var kinds []JobKind
	if opts.AutoDue && ev.Metadata[comms.MetaNumeric] == "false" {
		kinds = append(kinds, JobNewItems)
	}
	if opts.Recurrence {
		kinds = append(kinds, JobCompletions)
	}
	if opts.AutoSort {
		kinds = append(kinds, JobSort)
	}
	d.submitAll(ev.Entity, kinds...)
	if d.smartEnabled() {
		d.submitAll(SmartListsWorker, JobSmartLists)
	}
	return nil
}

func (d *Dispatcher) onMidnight(_ context.Context, _ *comms.Event) error {
	for _, j := range d.engine.MidnightJobs() {
		d.submitAll(j.Entity, j.Kind)
	}
	return nil
}
