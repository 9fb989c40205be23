// Package watchfs delivers external-update notifications for file-backed
// sources. It watches the directories holding unlocked archives and, after a
// debounce window, reports which source's backing files changed.
package watchfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces the burst of write events a single save produces
// into one notification.
const defaultDebounce = 500 * time.Millisecond

// Config holds the parameters for a Watcher.
type Config struct {
	// Debounce is the quiet period after the last event before OnUpdate
	// fires. Zero or negative values fall back to the default.
	Debounce time.Duration

	// OnUpdate is called with the source ID whose backing files changed.
	OnUpdate func(sourceID string)
}

// Watcher maps filesystem events under watched archive directories to source
// IDs. Watch and Unwatch may be called while Run is in flight.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onUpdate func(sourceID string)

	mu     sync.Mutex
	byDir  map[string]string // archive directory -> source ID
	timers map[string]*time.Timer
	closed bool
}

// New creates a Watcher. Call Run to start event delivery and Close when
// done.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watchfs: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		onUpdate: cfg.OnUpdate,
		byDir:    make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Watch starts monitoring the directory holding a source's archive files.
// Typically called when the source unlocks.
func (w *Watcher) Watch(sourceID, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("watchfs: resolve %q: %w", dir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watchfs: watcher is closed")
	}
	if _, ok := w.byDir[abs]; ok {
		return nil
	}
	if err := w.fsw.Add(abs); err != nil {
		return fmt.Errorf("watchfs: watch %q: %w", abs, err)
	}
	w.byDir[abs] = sourceID
	return nil
}

// Unwatch stops monitoring the given source. Typically called on lock or
// removal. Unknown source IDs are ignored.
func (w *Watcher) Unwatch(sourceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir, id := range w.byDir {
		if id != sourceID {
			continue
		}
		delete(w.byDir, dir)
		if t, ok := w.timers[sourceID]; ok {
			t.Stop()
			delete(w.timers, sourceID)
		}
		if !w.closed {
			if err := w.fsw.Remove(dir); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to unwatch %q: %v\n", dir, err)
			}
		}
	}
}

// Run blocks until ctx is cancelled, translating filesystem events into
// debounced OnUpdate calls.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			w.schedule(ctx, filepath.Dir(evt.Name))

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "warning: file watcher error: %v\n", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for the source owning dir.
func (w *Watcher) schedule(ctx context.Context, dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sourceID, ok := w.byDir[dir]
	if !ok {
		return
	}
	if t, ok := w.timers[sourceID]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[sourceID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, sourceID)
		stillWatched := false
		for _, id := range w.byDir {
			if id == sourceID {
				stillWatched = true
				break
			}
		}
		w.mu.Unlock()

		if ctx.Err() != nil || !stillWatched {
			return
		}
		if w.onUpdate != nil {
			w.onUpdate(sourceID)
		}
	})
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
