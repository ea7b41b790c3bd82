// Package watch invalidates cached workflows when their files change on
// disk.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"subflow/internal/location"
	"subflow/pkg/logging"
)

// DefaultDebounce is used when New is given a zero debounce interval.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the directories of loaded local workflows and reports a
// changed workflow once its directory has been quiet for the debounce
// interval.
//
// Only the workflow directory itself is watched, not its subdirectories;
// the definition lives at the top level.
type Watcher struct {
	mu sync.Mutex

	// watcher is the fsnotify watcher instance, nil until Start
	watcher *fsnotify.Watcher

	// dirs maps a watched directory to its workflow location
	dirs map[string]location.Location

	debounce time.Duration
	pending  map[string]*time.Timer
	onChange func(location.Location)

	stopCh  chan struct{}
	running bool
}

// New creates a watcher that calls onChange for every changed workflow.
// onChange runs on a timer goroutine.
func New(debounce time.Duration, onChange func(location.Location)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dirs:     make(map[string]location.Location),
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching. Directories added before Start are watched from
// now on.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})

	for dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			logging.Warn("Watcher", "Failed to watch %s: %v", dir, err)
		}
	}
	events, errs, stopCh := watcher.Events, watcher.Errors, w.stopCh
	w.mu.Unlock()

	go w.processEvents(ctx, events, errs, stopCh)

	logging.Debug("Watcher", "Started watching workflow directories")
	return nil
}

// Watch starts watching dir for changes of the workflow at loc.
func (w *Watcher) Watch(loc location.Location, dir string) error {
	dir = filepath.Clean(dir)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	w.dirs[dir] = loc

	if w.running {
		if err := w.watcher.Add(dir); err != nil {
			delete(w.dirs, dir)
			return err
		}
	}
	logging.Debug("Watcher", "Watching %s", dir)
	return nil
}

// Unwatch stops watching dir.
func (w *Watcher) Unwatch(dir string) {
	dir = filepath.Clean(dir)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; !ok {
		return
	}
	delete(w.dirs, dir)
	if t, ok := w.pending[dir]; ok {
		t.Stop()
		delete(w.pending, dir)
	}
	if w.running {
		// The directory may already be gone, in which case fsnotify has
		// dropped the watch itself.
		_ = w.watcher.Remove(dir)
	}
	logging.Debug("Watcher", "Stopped watching %s", dir)
}

// Watched returns the watched directories in sorted order.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func (w *Watcher) processEvents(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			w.cleanupPending()
			return

		case <-stopCh:
			w.cleanupPending()
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errs:
			if !ok {
				return
			}
			logging.Error("Watcher", err, "Filesystem watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	name := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := name
	if _, ok := w.dirs[dir]; !ok {
		dir = filepath.Dir(name)
	}
	loc, ok := w.dirs[dir]
	if !ok {
		return
	}

	if t, ok := w.pending[dir]; ok {
		t.Stop()
	}
	w.pending[dir] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		_, stillWatched := w.dirs[dir]
		delete(w.pending, dir)
		w.mu.Unlock()

		if stillWatched {
			logging.Info("Watcher", "Workflow %s changed on disk", loc)
			w.onChange(loc)
		}
	})
}

func (w *Watcher) cleanupPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir, t := range w.pending {
		t.Stop()
		delete(w.pending, dir)
	}
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
		w.watcher = nil
	}
	logging.Debug("Watcher", "Stopped")
	return err
}
