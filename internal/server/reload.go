package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/crypdick/pynchy-gate/internal/logging"
)

// DefaultDebounce is how long the reloader waits after the last change.
const DefaultDebounce = 500 * time.Millisecond

// Reloader watches the config file and calls reload after it changes.
type Reloader struct {
	watcher  *fsnotify.Watcher
	path     string
	reload   func() error
	log      *logging.Entry
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewReloader watches the directory holding path, so editors that replace
// the file on save are still seen.
func NewReloader(path string, reload func() error, log *logging.Entry) (*Reloader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}
	return &Reloader{
		watcher:  watcher,
		path:     abs,
		reload:   reload,
		log:      logging.OrDiscard(log),
		debounce: DefaultDebounce,
	}, nil
}

// Run handles file events until ctx ends.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()
	defer r.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				r.schedule()
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.WithError(err).Warn("file watcher error")
		}
	}
}

func (r *Reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() {
		if err := r.reload(); err != nil {
			r.log.WithError(err).Error("hot-reload failed, keeping previous config")
			return
		}
		r.log.WithField("path", r.path).Info("config reloaded")
	})
}

func (r *Reloader) stopTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
}
