package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatusPending is the only denormalized order status under which a
// funnel entity may receive automated dispatch.
const OrderStatusPending = "pending"

// OrderStatusPaid observed on the denormalized snapshot is the trigger for an
// automatic pending→completed transition; it is never trusted without
// re-querying the order collaborator.
const OrderStatusPaid = "paid"

// Entity is the tracked re-engagement record for one unpaid order.
type Entity struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	CustomerWhatsApp string
	CustomerEmail    string
	Bucket           Bucket
	CurrentStep      int
	IsPaused         bool
	NextDispatchAt   *time.Time
	ExitReason       *string
	QuizID           *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Denormalized order snapshot, cached at load time. Possibly stale:
	// the authoritative status always comes from the order collaborator.
	OrderStatus    string
	OrderAmount    int64
	OrderCreatedAt time.Time
	OrderPendingAt time.Time

	// Cached message aggregates for board rendering.
	MessagesCount int
	LastMessageAt *time.Time
}

// PendingSince is the dwell basis: when the order entered pending, falling
// back to the order's creation time for rows that predate the pending
// timestamp.
func (e Entity) PendingSince() time.Time {
	if !e.OrderPendingAt.IsZero() {
		return e.OrderPendingAt
	}
	return e.OrderCreatedAt
}
