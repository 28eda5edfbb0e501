package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher reports edits to the config file. It watches the parent directory
// with fsnotify, because editors commonly save by renaming a temp file over
// the original, and falls back to polling the file's mtime when fsnotify is
// unavailable.
type Watcher struct {
	// path is the absolute path of the config file.
	path string
	// events delivers a signal each time the file changes.
	// Buffered to 1 so a burst of writes coalesces into one reload.
	events chan struct{}
	// done is closed by [Watcher.Close] to stop the goroutines.
	done chan struct{}
	// fsw is the underlying fsnotify watcher; nil when polling from the start.
	fsw *fsnotify.Watcher
	// once makes [Watcher.Close] idempotent.
	once sync.Once
	// polling is true once the watcher has fallen back to stat polling.
	polling atomic.Bool
	// pollInterval is the duration between stat calls in polling mode.
	pollInterval time.Duration
}

// NewWatcher starts watching the config file at path.
func NewWatcher(path string) (*Watcher, error) {
	return newWatcher(path, 2*time.Second)
}

func newWatcher(path string, pollInterval time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	w := &Watcher{
		path:         abs,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		slog.Info("cannot watch config directory, falling back to polling", "path", abs, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}
	w.fsw = fsw
	go w.watch()
	return w, nil
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when the config changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// startPolling records the current mtime before the loop starts, so an edit
// racing the goroutine start is still seen as a change.
func (w *Watcher) startPolling() {
	var lastMod time.Time
	if info, err := os.Stat(w.path); err == nil {
		lastMod = info.ModTime()
	}
	w.polling.Store(true)
	go w.poll(lastMod)
}

// watch forwards write, create and rename events that touch the config file.
// An fsnotify error switches the watcher to polling for the rest of its life.
//
// w.fsw is never reassigned after construction; Close reads it concurrently.
func (w *Watcher) watch() {
	fsw := w.fsw
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			fsw.Close()
			w.startPolling()
			return
		}
	}
}

// poll stats the file every pollInterval and signals when its mtime advances
// past lastMod.
func (w *Watcher) poll(lastMod time.Time) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				w.notify()
			}
		}
	}
}

// notify sends one signal, dropping it when one is already pending.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
