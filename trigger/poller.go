// Package trigger turns host state changes and the local day rollover into
// bus events.
package trigger

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/task"
)

// Poller reads the state of each watched entity on an interval and publishes
// count_changed when the open-item count rises and state_changed for any
// other change.
type Poller struct {
	reader   task.StateReader
	bus      comms.Bus
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	entities []string
	last     map[string]string
}

// NewPoller creates a poller. A non-positive interval uses 10 seconds.
func NewPoller(reader task.StateReader, bus comms.Bus, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		reader:   reader,
		bus:      bus,
		interval: interval,
		logger:   logger,
		last:     make(map[string]string),
	}
}

// SetEntities replaces the watched entities. Entities no longer watched lose
// their baseline; new ones get one on their first poll.
func (p *Poller) SetEntities(entities []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entities = slices.Clone(entities)
	for e := range p.last {
		if !slices.Contains(entities, e) {
			delete(p.last, e)
		}
	}
}

// Run polls until ctx is cancelled. The first round only records baselines.
func (p *Poller) Run(ctx context.Context) {
	p.Poll(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one round over the watched entities.
func (p *Poller) Poll(ctx context.Context) {
	p.mu.Lock()
	entities := slices.Clone(p.entities)
	p.mu.Unlock()

	for _, entity := range entities {
		state, err := p.reader.State(ctx, entity)
		if err != nil {
			p.logger.Error("read state", slog.String("entity", entity), slog.Any("err", err))
			continue
		}
		if state == "unavailable" || state == "unknown" || state == "" {
			continue
		}

		p.mu.Lock()
		old, seen := p.last[entity]
		p.last[entity] = state
		p.mu.Unlock()
		if !seen || old == state {
			continue
		}

		ev := classify(entity, old, state)
		if err := p.bus.Publish(ctx, ev); err != nil {
			p.logger.Warn("publish state event", slog.String("entity", entity), slog.Any("err", err))
		}
	}
}

func classify(entity, old, state string) *comms.Event {
	ev := &comms.Event{Type: comms.TypeStateChanged, Entity: entity, OldState: old, NewState: state}
	o, errOld := strconv.Atoi(old)
	n, errNew := strconv.Atoi(state)
	if errOld != nil || errNew != nil {
		ev.Metadata = map[string]string{comms.MetaNumeric: "false"}
		return ev
	}
	if n > o {
		ev.Type = comms.TypeCountChanged
	}
	return ev
}
