package accounts

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors emit for one save.
var reloadDelay = 250 * time.Millisecond

// Holder publishes the active [Registry] to concurrent readers.
type Holder struct {
	current atomic.Pointer[Registry]
}

// NewHolder returns a Holder serving r.
func NewHolder(r *Registry) *Holder {
	h := &Holder{}
	h.current.Store(r)
	return h
}

// Current returns the active registry.
func (h *Holder) Current() *Registry {
	return h.current.Load()
}

// Store swaps in r for subsequent readers.
func (h *Holder) Store(r *Registry) {
	h.current.Store(r)
}

// Watch reloads the accounts file at path whenever it changes and stores the result in h.
// A file that fails to parse keeps the previous registry active. onReload, when non-nil,
// is called with each new registry. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, opts Options, h *Holder, logger *log.Logger, onReload func(*Registry)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create accounts watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so atomic renames and recreated files are seen.
	dir, name := filepath.Dir(path), filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		r, err := Load(path, opts)
		if err != nil {
			logger.Warn("accounts reload failed; keeping previous accounts", "path", path, "error", err)
			return
		}
		h.Store(r)
		counts := r.Counts()
		logger.Info("accounts reloaded", "path", path, "usable", counts[StatusUsable], "total", len(r.All()))
		if onReload != nil {
			onReload(r)
		}
	}
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDelay, reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	logger.Debug("watching accounts file", "path", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("accounts watch error", "error", err)
		}
	}
}
