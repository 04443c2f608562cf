// Package daemon wires the todomagic components together from a config.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/config"
	"github.com/GoCodeAlone/todomagic/hass"
	"github.com/GoCodeAlone/todomagic/lists"
	"github.com/GoCodeAlone/todomagic/reconcile"
	"github.com/GoCodeAlone/todomagic/server"
	"github.com/GoCodeAlone/todomagic/server/api"
	"github.com/GoCodeAlone/todomagic/task"
	"github.com/GoCodeAlone/todomagic/trigger"
)

// Options tune a Daemon beyond what the config file says.
type Options struct {
	Clock   clock.Clock    // nil means the wall clock
	Level   *slog.LevelVar // updated on reload when set
	Version string
}

// host is what the daemon needs from a list backend.
type host interface {
	task.Host
	task.StateReader
}

// Daemon owns every long-running component.
type Daemon struct {
	logger *slog.Logger
	opts   Options

	mu  sync.Mutex
	cfg *config.Config

	host       host
	closeHost  func() error
	bus        *comms.InMemoryBus
	engine     *reconcile.Engine
	dispatcher *reconcile.Dispatcher
	poller     *trigger.Poller
	midnight   *trigger.Midnight
	server     *server.Server
}

// New builds a daemon from cfg. Nothing runs until Run.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	d := &Daemon{logger: logger, opts: opts, cfg: cfg}
	if err := d.openHost(cfg); err != nil {
		return nil, err
	}

	grace, _ := cfg.Grace()
	poll, _ := cfg.PollEvery()

	d.bus = comms.NewInMemoryBus()
	d.engine = reconcile.NewEngine(d.host, reconcile.NewGuards(grace), opts.Clock, d.bus, logger.With(slog.String("component", "engine")))
	d.engine.Configure(ListOptions(cfg), SmartLists(cfg))
	d.dispatcher = reconcile.NewDispatcher(d.engine, d.bus, logger.With(slog.String("component", "dispatcher")))
	d.poller = trigger.NewPoller(d.host, d.bus, poll, logger.With(slog.String("component", "poller")))
	d.poller.SetEntities(cfg.Entities())
	d.midnight = trigger.NewMidnight(d.bus, opts.Clock, logger)

	if cfg.Auth.AdminPass == "" {
		logger.Warn("auth.admin_pass is empty; API login is disabled")
	}
	d.server = server.New(*cfg, opts.Version, logger.With(slog.String("component", "server")))
	d.server.SetBus(d.bus)
	d.server.SetListManager(api.NewListManager(d.engine, d.dispatcher, d.host))
	return d, nil
}

func (d *Daemon) openHost(cfg *config.Config) error {
	switch cfg.Host.Kind {
	case config.HostHass:
		if cfg.Host.Token == "" {
			d.logger.Warn("host.token is empty; home assistant will reject requests")
		}
		d.host = hass.New(cfg.Host.URL, cfg.Host.Token, cfg.HostTimeout())
		d.closeHost = func() error { return nil }
		d.logger.Info("using home assistant host", slog.String("url", cfg.Host.URL))
	default:
		store, err := task.NewSQLiteStore(cfg.DBPath())
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		d.host = store
		d.closeHost = store.Close
		d.logger.Info("using local host", slog.String("db", cfg.DBPath()))
	}
	return nil
}

// ListOptions converts the configured lists into engine switches.
func ListOptions(cfg *config.Config) map[string]reconcile.ListOptions {
	out := make(map[string]reconcile.ListOptions, len(cfg.Lists))
	for _, l := range cfg.Lists {
		out[l.Entity] = reconcile.ListOptions{
			AutoDue:       l.AutoDue,
			AutoSort:      l.AutoSort,
			Recurrence:    l.Recurrence,
			AutoClear:     l.AutoClear,
			AutoClearDays: l.AutoClearDays,
		}
	}
	return out
}

// SmartLists returns the configured smart-list targets, empty when disabled.
func SmartLists(cfg *config.Config) lists.SmartLists {
	if !cfg.SmartLists.Enabled {
		return lists.SmartLists{}
	}
	return lists.SmartLists{
		Daily:   cfg.SmartLists.Daily,
		Weekly:  cfg.SmartLists.Weekly,
		Monthly: cfg.SmartLists.Monthly,
	}
}

// Bus returns the event bus.
func (d *Daemon) Bus() comms.Bus { return d.bus }

// Engine returns the reconciliation engine.
func (d *Daemon) Engine() *reconcile.Engine { return d.engine }

// Host returns the list backend.
func (d *Daemon) Host() task.Host { return d.host }

// Run starts every component and blocks until ctx is cancelled or the HTTP
// server fails. Shutdown waits up to ten seconds.
func (d *Daemon) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.dispatcher.Start(runCtx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.poller.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		d.midnight.Run(runCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-runCtx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := d.server.Stop(shutdownCtx); err != nil {
		d.logger.Error("server stop", slog.Any("err", err))
	}
	if err := d.dispatcher.Stop(shutdownCtx); err != nil {
		d.logger.Error("dispatcher stop", slog.Any("err", err))
	}
	wg.Wait()
	return runErr
}

// Apply switches to a reloaded config. Lists, smart lists, and the log level
// change in place; host and server settings need a restart.
func (d *Daemon) Apply(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	d.mu.Lock()
	old := d.cfg
	d.cfg = cfg
	d.mu.Unlock()

	if old.Host != cfg.Host || old.Server != cfg.Server || old.Auth != cfg.Auth {
		d.logger.Warn("host, server and auth changes take effect after a restart")
	}
	if d.opts.Level != nil {
		if lvl, err := config.ParseLevel(cfg.LogLevel); err == nil {
			d.opts.Level.Set(lvl)
		}
	}

	d.engine.Configure(ListOptions(cfg), SmartLists(cfg))
	if err := d.dispatcher.Sync(ctx); err != nil {
		return fmt.Errorf("sync workers: %w", err)
	}
	d.poller.SetEntities(cfg.Entities())

	d.logger.Info("config applied", slog.Int("lists", len(cfg.Lists)), slog.Bool("smart_lists", cfg.SmartLists.Enabled))
	return d.bus.Publish(ctx, &comms.Event{
		Type:    comms.TypeConfigReloaded,
		Summary: fmt.Sprintf("%d lists", len(cfg.Lists)),
	})
}

// Close releases the list backend.
func (d *Daemon) Close() error {
	return d.closeHost()
}
