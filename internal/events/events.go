package events

import (
	"github.com/google/uuid"
)

// FunnelMessageSent fires after a campaign message is delivered and recorded.
type FunnelMessageSent struct {
	BaseEvent
	FunnelID    uuid.UUID
	OrderID     uuid.UUID
	MessageType string
	Step        int
}

// EventName returns the unique identifier for the event type.
func (FunnelMessageSent) EventName() string { return "funnel.message.sent" }

// FunnelMessageFailed fires after a dispatch attempt is refused by the
// outbound channel or fails in transit.
type FunnelMessageFailed struct {
	BaseEvent
	FunnelID    uuid.UUID
	OrderID     uuid.UUID
	MessageType string
	Reason      string
}

// EventName returns the unique identifier for the event type.
func (FunnelMessageFailed) EventName() string { return "funnel.message.failed" }

// FunnelMoved fires after an entity changes lifecycle bucket.
type FunnelMoved struct {
	BaseEvent
	FunnelID uuid.UUID
	OrderID  uuid.UUID
	From     string
	To       string
	Manual   bool
}

// EventName returns the unique identifier for the event type.
func (FunnelMoved) EventName() string { return "funnel.moved" }

// OrderPaidDetected fires when a dispatch attempt observes a paid order
// still tracked in pending. The transition engine subscribes and completes
// the entity.
type OrderPaidDetected struct {
	BaseEvent
	FunnelID uuid.UUID
	OrderID  uuid.UUID
}

// EventName returns the unique identifier for the event type.
func (OrderPaidDetected) EventName() string { return "order.paid.detected" }
