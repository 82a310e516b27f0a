// Package events carries the in-process pub/sub contract the funnel modules
// communicate over: dispatch outcomes, bucket moves, and paid-order
// detections all travel the same bus.
package events

import (
	"context"
	"time"
)

// Event is implemented by every published message. EventName keys handler
// registration, so it must stay stable across releases.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent supplies the occurrence timestamp; concrete events embed it.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns the embedded timestamp.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events it subscribed to. A handler error is logged by the
// async publish path and propagated by the synchronous one.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle invokes the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers. Publish is fire-and-forget;
// PublishSync waits for every handler and surfaces the first error, which
// tests and ordering-sensitive callers rely on.
type Bus interface {
	Publish(ctx context.Context, event Event)
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
