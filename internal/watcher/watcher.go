// Package watcher fans out server output to pattern listeners.
//
// A [Watcher] receives each output chunk (one line) through [Watcher.Emit] and
// invokes every registered [Listener] with it, synchronously and in
// registration order. There is no buffering or replay: a listener added after
// a chunk was emitted never sees that chunk.
//
// Listeners are identified by the [Handle] returned from
// [Watcher.AddListener]. A listener stays registered until it is removed with
// [Watcher.RemoveListener]; one-shot listeners (such as await steps) are
// responsible for removing themselves once resolved.
package watcher

import (
	"fmt"
	"runtime/debug"
	"sync"

	"serverharness/internal/logging"
)

// Listener is a predicate invoked with each output chunk. It returns true when
// the chunk matched what the listener is looking for.
type Listener func(chunk string) bool

// Handle identifies a registered listener. The zero Handle is never issued.
type Handle uint64

type entry struct {
	handle   Handle
	listener Listener
}

// Watcher dispatches output chunks to registered listeners.
// It is safe for concurrent use.
type Watcher struct {
	mu        sync.Mutex
	listeners []entry
	next      Handle
	logger    *logging.Logger
}

// New creates an empty Watcher.
func New() *Watcher {
	return &Watcher{logger: logging.NopLogger()}
}

// SetLogger configures the logger used to report panicking listeners.
func (w *Watcher) SetLogger(l *logging.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l == nil {
		l = logging.NopLogger()
	}
	w.logger = l
}

// AddListener registers l and returns a handle for removing it.
func (w *Watcher) AddListener(l Listener) Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.next++
	w.listeners = append(w.listeners, entry{handle: w.next, listener: l})
	return w.next
}

// RemoveListener unregisters the listener with handle h.
// Returns false if h was not registered (or was already removed).
func (w *Watcher) RemoveListener(h Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, e := range w.listeners {
		if e.handle == h {
			w.listeners = append(w.listeners[:i:i], w.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Emit delivers chunk to every listener registered at the time of the call,
// in registration order, and returns how many of them reported a match.
//
// Listeners run outside the watcher's lock so they may add or remove
// listeners (including themselves). A panicking listener is recovered and
// logged; delivery continues with the remaining listeners.
func (w *Watcher) Emit(chunk string) int {
	w.mu.Lock()
	snapshot := make([]entry, len(w.listeners))
	copy(snapshot, w.listeners)
	logger := w.logger
	w.mu.Unlock()

	matched := 0
	for _, e := range snapshot {
		if safeCall(logger, e, chunk) {
			matched++
		}
	}
	return matched
}

func safeCall(logger *logging.Logger, e entry, chunk string) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("output listener panicked",
				"handle", uint64(e.handle),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			matched = false
		}
	}()
	return e.listener(chunk)
}

// Len returns the number of registered listeners.
func (w *Watcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners)
}

// Clear removes all listeners.
func (w *Watcher) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = nil
}
