package domain

import (
	"fmt"
	"time"

	"serenata_backend/platform/phone"
)

// MinDwell is the minimum time an order must sit in pending before the first
// automated message may be sent.
const MinDwell = 7 * time.Minute

// Eligibility is the outcome of a CanSend evaluation.
type Eligibility struct {
	Valid  bool
	Reason string
	// RemainingDwell is set when the only blocker is the minimum interval,
	// so callers can render a countdown.
	RemainingDwell time.Duration
}

// CanSend decides whether the first-touch send is currently allowed for the
// entity given its message history. Checks run in order and short-circuit on
// the first failure. Pure: the same inputs always produce the same answer, so
// the function serves both the single-send precheck and the bulk filter.
func CanSend(e Entity, history []Message, now time.Time) Eligibility {
	if e.IsPaused {
		return Eligibility{Reason: "paused"}
	}

	if e.OrderStatus != OrderStatusPending {
		return Eligibility{Reason: fmt.Sprintf("order is %s", e.OrderStatus)}
	}

	if !phone.IsUsableWhatsApp(e.CustomerWhatsApp) {
		return Eligibility{Reason: "invalid whatsapp"}
	}

	if HasSentCheckoutLink(history) {
		return Eligibility{Reason: "already sent"}
	}

	if e.QuizID == nil {
		return Eligibility{Reason: "no quiz"}
	}

	elapsed := now.Sub(e.PendingSince())
	if elapsed < MinDwell {
		remaining := MinDwell - elapsed
		minutes := int(remaining.Minutes())
		if remaining%time.Minute != 0 {
			minutes++
		}
		return Eligibility{
			Reason:         fmt.Sprintf("waiting minimum interval (%d min remaining)", minutes),
			RemainingDwell: remaining,
		}
	}

	return Eligibility{Valid: true}
}

// CanSendStep decides whether a specific campaign step may be dispatched.
// Step 1 defers to the full first-touch check; later steps reuse the same
// guards except the checkout-link idempotency and dwell gates, which only
// apply to the first touch.
func CanSendStep(e Entity, history []Message, step int, now time.Time) Eligibility {
	if step == 1 {
		return CanSend(e, history, now)
	}

	if e.IsPaused {
		return Eligibility{Reason: "paused"}
	}
	if e.Bucket != BucketPending {
		return Eligibility{Reason: fmt.Sprintf("entity is %s", e.Bucket)}
	}
	if e.OrderStatus != OrderStatusPending {
		return Eligibility{Reason: fmt.Sprintf("order is %s", e.OrderStatus)}
	}
	if !phone.IsUsableWhatsApp(e.CustomerWhatsApp) {
		return Eligibility{Reason: "invalid whatsapp"}
	}
	if e.QuizID == nil {
		return Eligibility{Reason: "no quiz"}
	}
	if step < e.CurrentStep {
		return Eligibility{Reason: fmt.Sprintf("step %d already dispatched", step)}
	}

	return Eligibility{Valid: true}
}
