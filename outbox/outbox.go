package outbox

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Outcome is the three-valued result of a safe mutation: the call either
// reached the server ("ok"), was deferred to the queue ("queued"), or
// failed in a way that retrying cannot fix ("error").
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeQueued Outcome = "queued"
	OutcomeError  Outcome = "error"
)

// Handler replays one queued mutation. A nil return removes the item from
// the queue; any error keeps it for the next flush.
type Handler func(ctx context.Context, payload json.RawMessage) error

// FlushResult counts what one flush pass achieved.
type FlushResult struct {
	Flushed int `json:"flushed"`
	Pending int `json:"pending"`
}

// Queue is the offline mutation queue. Items are persisted on enqueue,
// replayed in strict insertion order on Flush, and removed only by a
// successful replay. There is no backoff and no attempt ceiling.
type Queue struct {
	store Store
	log   *logrus.Logger
	now   func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler

	flushing atomic.Bool
}

// QueueOption configures optional Queue collaborators.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger (defaults to the logrus standard logger).
func WithQueueLogger(log *logrus.Logger) QueueOption {
	return func(q *Queue) { q.log = log }
}

// New creates a Queue backed by store.
func New(store Store, opts ...QueueOption) *Queue {
	q := &Queue{
		store:    store,
		log:      logrus.StandardLogger(),
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register binds a handler to an item type. Items of unregistered types
// stay pending until a handler shows up.
func (q *Queue) Register(itemType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[itemType] = h
}

// Enqueue persists one mutation for later replay. A persistence failure
// is returned to the caller rather than swallowed, so "queued" is never
// reported for a mutation that was actually lost.
func (q *Queue) Enqueue(itemType string, payload interface{}) (*Item, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	item := Item{
		ID:         uuid.NewString(),
		Type:       itemType,
		Payload:    raw,
		EnqueuedAt: q.now(),
	}
	if err := q.store.Append(item); err != nil {
		return nil, err
	}
	q.log.WithFields(logrus.Fields{"type": itemType, "id": item.ID}).Info("mutation queued for replay")
	return &item, nil
}

// Len reports how many items are waiting.
func (q *Queue) Len() (int, error) {
	items, err := q.store.Load()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Flush replays every pending item in insertion order, sequentially: one
// item's round trip completes before the next begins. Items whose replay
// succeeds are batch-removed after the full pass; the rest stay put.
// Individual replay errors are counted, logged and swallowed so one bad
// item never blocks the rest.
//
// Only one flush runs at a time: a second concurrent call returns a
// zero-value result immediately instead of doubling up.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	if !q.flushing.CompareAndSwap(false, true) {
		return FlushResult{}, nil
	}
	defer q.flushing.Store(false)

	items, err := q.store.Load()
	if err != nil {
		return FlushResult{}, err
	}
	if len(items) == 0 {
		return FlushResult{}, nil
	}

	var succeeded []string
	for _, item := range items {
		q.mu.RLock()
		h, ok := q.handlers[item.Type]
		q.mu.RUnlock()
		if !ok {
			q.log.WithField("type", item.Type).Warn("no handler registered for queued item")
			continue
		}
		if err := h(ctx, item.Payload); err != nil {
			q.log.WithFields(logrus.Fields{"type": item.Type, "id": item.ID}).
				WithError(err).Debug("replay failed, item retained")
			continue
		}
		succeeded = append(succeeded, item.ID)
	}

	if err := q.store.Remove(succeeded); err != nil {
		return FlushResult{}, err
	}

	result := FlushResult{Flushed: len(succeeded), Pending: len(items) - len(succeeded)}
	q.log.WithFields(logrus.Fields{"flushed": result.Flushed, "pending": result.Pending}).Info("offline queue flushed")
	return result, nil
}
