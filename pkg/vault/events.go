package vault

import "sync"

// Archive event names.
const (
	eventUnlocked = "unlocked"
	eventUpdated  = "updated"
)

// emitter is a minimal callback registry. It deliberately has no duplicate
// guard: callers that attach once-per-archive must track what they have
// already subscribed to themselves.
type emitter struct {
	mu        sync.Mutex
	listeners map[string][]func()
}

func (e *emitter) subscribe(event string, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]func())
	}
	e.listeners[event] = append(e.listeners[event], fn)
}

func (e *emitter) fire(event string) {
	e.mu.Lock()
	fns := make([]func(), len(e.listeners[event]))
	copy(fns, e.listeners[event])
	e.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnUnlocked registers a callback fired after each successful Unlock.
func (a *Archive) OnUnlocked(fn func()) {
	a.events.subscribe(eventUnlocked, fn)
}

// OnUpdated registers a callback fired after each successful Save or Reload.
func (a *Archive) OnUpdated(fn func()) {
	a.events.subscribe(eventUpdated, fn)
}
