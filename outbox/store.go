// Package outbox implements the offline mutation queue: failed writes are
// persisted locally in insertion order and replayed on explicit flush,
// forever, until each one succeeds.
package outbox

import (
	"encoding/json"
	"time"
)

// Item is one deferred mutation. Payload is kept as raw JSON so the queue
// never needs to know the shape of what it carries.
type Item struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Store persists the queue as an ordered sequence. Implementations must
// preserve insertion order across Load calls.
type Store interface {
	// Load returns every persisted item, oldest first.
	Load() ([]Item, error)
	// Append adds one item at the tail and persists immediately.
	Append(item Item) error
	// Remove deletes the items with the given IDs, keeping the rest in
	// their original order.
	Remove(ids []string) error
}
