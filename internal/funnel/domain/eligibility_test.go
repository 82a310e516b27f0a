package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func eligibleEntity(now time.Time) Entity {
	quizID := uuid.New()
	return Entity{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		CustomerWhatsApp: "11987654321",
		CustomerEmail:    "cliente@example.com",
		Bucket:           BucketPending,
		CurrentStep:      1,
		QuizID:           &quizID,
		OrderStatus:      OrderStatusPending,
		OrderCreatedAt:   now.Add(-10 * time.Minute),
	}
}

func TestCanSendEligibleEntity(t *testing.T) {
	now := time.Now()
	result := CanSend(eligibleEntity(now), nil, now)
	if !result.Valid {
		t.Fatalf("expected valid, got reason=%q", result.Reason)
	}
}

func TestCanSendPausedShortCircuitsFirst(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)
	e.IsPaused = true
	// Stack every other failure condition: paused must still win.
	e.CustomerWhatsApp = ""
	e.QuizID = nil

	result := CanSend(e, nil, now)
	if result.Valid {
		t.Fatalf("expected invalid")
	}
	if result.Reason != "paused" {
		t.Fatalf("expected reason=%q, got %q", "paused", result.Reason)
	}
}

func TestCanSendReflectsActualOrderStatus(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)
	e.OrderStatus = OrderStatusPaid

	result := CanSend(e, nil, now)
	if result.Valid {
		t.Fatalf("expected invalid")
	}
	if !strings.Contains(result.Reason, "paid") {
		t.Fatalf("expected reason to reflect order status, got %q", result.Reason)
	}
}

func TestCanSendRejectsShortWhatsApp(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)
	e.CustomerWhatsApp = "119876"

	result := CanSend(e, nil, now)
	if result.Valid || result.Reason != "invalid whatsapp" {
		t.Fatalf("expected invalid whatsapp, got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestCanSendIdempotencyGuard(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)
	sentAt := now.Add(-time.Minute)
	history := []Message{
		{FunnelID: e.ID, Type: MessageCheckoutLink, Status: MessageStatusSent, SentAt: &sentAt},
	}

	result := CanSend(e, history, now)
	if result.Valid || result.Reason != "already sent" {
		t.Fatalf("expected already sent, got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestCanSendFailedRecordDoesNotTriggerGuard(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)
	history := []Message{
		{FunnelID: e.ID, Type: MessageCheckoutLink, Status: MessageStatusFailed},
	}

	result := CanSend(e, history, now)
	if !result.Valid {
		t.Fatalf("expected valid after failed attempt, got reason=%q", result.Reason)
	}
}

func TestCanSendRequiresQuiz(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)
	e.QuizID = nil

	result := CanSend(e, nil, now)
	if result.Valid || result.Reason != "no quiz" {
		t.Fatalf("expected no quiz, got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestCanSendDwellBoundary(t *testing.T) {
	now := time.Now()

	e := eligibleEntity(now)
	e.OrderCreatedAt = now.Add(-6 * time.Minute)
	result := CanSend(e, nil, now)
	if result.Valid {
		t.Fatalf("expected ineligible at 6 minutes")
	}
	if result.RemainingDwell != time.Minute {
		t.Fatalf("expected 1m remaining, got %s", result.RemainingDwell)
	}

	e.OrderCreatedAt = now.Add(-MinDwell)
	result = CanSend(e, nil, now)
	if !result.Valid {
		t.Fatalf("expected eligible at exactly 7 minutes, got reason=%q", result.Reason)
	}
}

func TestCanSendDwellCountsFromPendingTimestamp(t *testing.T) {
	now := time.Now()

	// The order existed for an hour before payment fell through and it
	// entered pending; the dwell clock starts at pending, not creation.
	e := eligibleEntity(now)
	e.OrderCreatedAt = now.Add(-time.Hour)
	e.OrderPendingAt = now.Add(-2 * time.Minute)

	result := CanSend(e, nil, now)
	if result.Valid {
		t.Fatalf("expected ineligible 2 minutes after pending")
	}
	if result.RemainingDwell != 5*time.Minute {
		t.Fatalf("expected 5m remaining, got %s", result.RemainingDwell)
	}

	e.OrderPendingAt = now.Add(-MinDwell)
	if result := CanSend(e, nil, now); !result.Valid {
		t.Fatalf("expected eligible after full dwell, got reason=%q", result.Reason)
	}
}

func TestCanSendPauseToggleScenario(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)

	if result := CanSend(e, nil, now); !result.Valid {
		t.Fatalf("expected valid, got reason=%q", result.Reason)
	}

	e.IsPaused = true
	result := CanSend(e, nil, now)
	if result.Valid || result.Reason != "paused" {
		t.Fatalf("expected paused, got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestCanSendStepSkipsFirstTouchGuards(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)
	e.CurrentStep = 2
	e.OrderCreatedAt = now.Add(-time.Minute) // inside dwell window
	sentAt := now.Add(-30 * time.Minute)
	history := []Message{
		{FunnelID: e.ID, Type: MessageCheckoutLink, Status: MessageStatusSent, SentAt: &sentAt},
	}

	result := CanSendStep(e, history, 2, now)
	if !result.Valid {
		t.Fatalf("expected follow-up eligible, got reason=%q", result.Reason)
	}
}

func TestCanSendStepRejectsReplayedStep(t *testing.T) {
	now := time.Now()
	e := eligibleEntity(now)
	e.CurrentStep = 3

	result := CanSendStep(e, nil, 2, now)
	if result.Valid {
		t.Fatalf("expected replayed step to be rejected")
	}
}
