// Package watch reloads training data when the model file changes on disk.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses bursts of events; editors and atomic renames
// often produce several per save.
const DefaultDebounce = 100 * time.Millisecond

// Loader loads training data from a path. trainingdata.Store satisfies it.
type Loader interface {
	LoadData(path string) bool
}

// selfWriter is implemented by loaders that can recognize a file they wrote
// themselves. Such changes are skipped: reloading them would drop every count
// recorded after the save.
type selfWriter interface {
	PersistedBySelf(path string) bool
}

// Watcher watches a single model file and reloads it after changes.
type Watcher struct {
	fw       *fsnotify.Watcher
	path     string
	loader   Loader
	logger   *zap.Logger
	debounce time.Duration
	onReload func(ok bool)

	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger for reload outcomes.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// OnReload registers a callback invoked after every reload attempt.
func OnReload(fn func(ok bool)) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// New watches path and reloads it into loader. The parent directory is
// watched so the file may be created or replaced by rename after New returns.
func New(path string, loader Loader, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		fw:       fw,
		path:     abs,
		loader:   loader,
		logger:   zap.NewNop(),
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Model watcher error", zap.Error(err))

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	if sw, isSelfWriter := w.loader.(selfWriter); isSelfWriter && sw.PersistedBySelf(w.path) {
		w.logger.Debug("Skipping reload of training data saved by this process", zap.String("path", w.path))
		return
	}

	ok := w.loader.LoadData(w.path)
	if ok {
		w.logger.Info("Reloaded training data after change", zap.String("path", w.path))
	} else {
		w.logger.Warn("Ignoring unreadable training data change", zap.String("path", w.path))
	}
	if w.onReload != nil {
		w.onReload(ok)
	}
}

// Stop ends watching and releases resources. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	return w.fw.Close()
}
