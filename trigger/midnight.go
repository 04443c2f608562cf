package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
	"github.com/GoCodeAlone/todomagic/comms"
)

// NextMidnight returns the start of the day after now, in now's location.
func NextMidnight(now time.Time) time.Time {
	return clock.Midnight(now).AddDate(0, 0, 1)
}

// Midnight publishes a midnight event each time the local day rolls over.
type Midnight struct {
	bus    comms.Bus
	clock  clock.Clock
	logger *slog.Logger
	after  func(time.Duration) <-chan time.Time
}

// NewMidnight creates a midnight timer.
func NewMidnight(bus comms.Bus, clk clock.Clock, logger *slog.Logger) *Midnight {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Midnight{bus: bus, clock: clk, logger: logger, after: time.After}
}

// Run fires until ctx is cancelled.
func (m *Midnight) Run(ctx context.Context) {
	for {
		now := m.clock.Now()
		wait := NextMidnight(now).Sub(now)
		select {
		case <-ctx.Done():
			return
		case <-m.after(wait):
		}
		m.logger.Info("midnight")
		if err := m.bus.Publish(ctx, &comms.Event{Type: comms.TypeMidnight}); err != nil {
			m.logger.Warn("publish midnight", slog.Any("err", err))
		}
	}
}
