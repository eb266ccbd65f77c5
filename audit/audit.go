// Package audit posts audit events to the backend and keeps a local
// fallback queue, persisted under its own key, for events that could not
// be delivered.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/tiendafix/storeapi/common"
	"github.com/tiendafix/storeapi/common/model"
	"github.com/tiendafix/storeapi/modules/api"
	"github.com/tiendafix/storeapi/outbox"
)

// EventType is the queue item type for deferred audit events.
const EventType = "audit.event"

// Logger records audit events. Delivery failures that look transient go
// to the fallback queue; everything else is surfaced.
type Logger struct {
	client api.Client
	tokens oauth2.TokenSource
	queue  *outbox.Queue
	log    *logrus.Logger
	now    func() time.Time
}

// NewLogger constructs an audit logger whose fallback queue persists in
// store. Use a store distinct from the mutation outbox so the two never
// share a key.
func NewLogger(client api.Client, tokens oauth2.TokenSource, store outbox.Store, log *logrus.Logger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &Logger{
		client: client,
		tokens: tokens,
		queue:  outbox.New(store, outbox.WithQueueLogger(log)),
		log:    log,
		now:    time.Now,
	}
	l.queue.Register(EventType, l.replay)
	return l
}

// Record posts one audit event. On a transport failure the event lands in
// the fallback queue and Record returns nil; a queue persistence failure
// or a structured server rejection is returned.
func (l *Logger) Record(ctx context.Context, action, entity, entityID, reason string) error {
	ev := model.AuditEvent{
		ID:       uuid.NewString(),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Reason:   reason,
		At:       l.now().UTC(),
	}
	err := l.post(ctx, ev)
	if err == nil {
		return nil
	}
	if !common.IsRetryable(err) {
		return err
	}
	if _, qErr := l.queue.Enqueue(EventType, ev); qErr != nil {
		return qErr
	}
	l.log.WithFields(logrus.Fields{"action": action, "entity": entity}).Info("audit event queued for replay")
	return nil
}

// Flush replays queued audit events.
func (l *Logger) Flush(ctx context.Context) (outbox.FlushResult, error) {
	return l.queue.Flush(ctx)
}

// Pending reports how many audit events await delivery.
func (l *Logger) Pending() (int, error) {
	return l.queue.Len()
}

func (l *Logger) post(ctx context.Context, ev model.AuditEvent) error {
	var token *oauth2.Token
	if l.tokens != nil {
		t, err := l.tokens.Token()
		if err != nil {
			return err
		}
		token = t
	}
	opts := &api.RequestOptions{Reason: ev.Reason}
	return l.client.PostJSON(ctx, "audit-log/", ev, nil, token, opts)
}

func (l *Logger) replay(ctx context.Context, payload json.RawMessage) error {
	var ev model.AuditEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	return l.post(ctx, ev)
}
