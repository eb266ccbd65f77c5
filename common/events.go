package common

import "sync"

// Signal identifies a cross-component notification. These replace the
// browser-style custom events the rest of the application listens for.
type Signal string

const (
	// SignalUnauthorized fires on a 401; the payload is the session-expired
	// message to show the user.
	SignalUnauthorized Signal = "unauthorized"
	// SignalNetworkError fires when connectivity degrades (transport
	// failure or 5xx).
	SignalNetworkError Signal = "network-error"
	// SignalNetworkRecovered fires on the first successful call after a
	// degradation.
	SignalNetworkRecovered Signal = "network-recovered"
)

// Events is a small synchronous fan-out bus. Handlers run on the emitting
// goroutine, in subscription order.
type Events struct {
	mu       sync.RWMutex
	handlers map[Signal][]func(message string)
}

// NewEvents returns an empty bus.
func NewEvents() *Events {
	return &Events{handlers: make(map[Signal][]func(message string))}
}

// Subscribe registers fn for sig. There is no unsubscribe; subscribers live
// as long as the bus.
func (e *Events) Subscribe(sig Signal, fn func(message string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[sig] = append(e.handlers[sig], fn)
}

// Emit invokes every handler registered for sig with the given message.
func (e *Events) Emit(sig Signal, message string) {
	e.mu.RLock()
	fns := make([]func(message string), len(e.handlers[sig]))
	copy(fns, e.handlers[sig])
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(message)
	}
}
