package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the reloaded config, or the error that stopped it loading.
type ReloadFunc func(cfg *Config, err error)

// DefaultReloadDelay collapses the burst of writes editors make when saving.
const DefaultReloadDelay = 250 * time.Millisecond

// Watch reloads path whenever it changes and hands the result to onChange.
// It blocks until ctx is cancelled. The parent directory is watched so that
// editors that replace the file by rename are still seen.
func Watch(ctx context.Context, path string, delay time.Duration, onChange ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	t := newThrottle(delay, func() {
		cfg, err := Load(path)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			onChange(nil, err)
			return
		}
		onChange(cfg, nil)
	})
	defer t.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				t.enqueue()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onChange(nil, fmt.Errorf("watch %s: %w", path, err))
		}
	}
}

// throttle runs fn once per burst of enqueue calls, delay after the last one.
type throttle struct {
	mu      sync.Mutex
	timer   *time.Timer
	delay   time.Duration
	fn      func()
	stopped bool
}

func newThrottle(delay time.Duration, fn func()) *throttle {
	return &throttle{delay: delay, fn: fn}
}

func (t *throttle) enqueue() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, t.flush)
}

func (t *throttle) flush() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()
	t.fn()
}

func (t *throttle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}
