package email

import (
	"context"
	"testing"
	"time"

	"serenata_backend/internal/events"
	"serenata_backend/platform/logger"

	"github.com/google/uuid"
)

type recordingSender struct {
	alerts []DispatchAlert
}

func (r *recordingSender) SendDispatchAlert(_ context.Context, alert DispatchAlert) error {
	r.alerts = append(r.alerts, alert)
	return nil
}

func TestAlertsOnDispatchFailure(t *testing.T) {
	sender := &recordingSender{}
	alerts := NewAlerts(sender, logger.New("development"))

	bus := events.NewInMemoryBus(logger.New("development"))
	alerts.RegisterHandlers(bus)

	event := events.FunnelMessageFailed{
		BaseEvent:   events.NewBaseEvent(),
		FunnelID:    uuid.New(),
		OrderID:     uuid.New(),
		MessageType: "checkout_link",
		Reason:      "connection refused",
	}
	if err := bus.PublishSync(context.Background(), event); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	if len(sender.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(sender.alerts))
	}
	if sender.alerts[0].Reason != "connection refused" {
		t.Fatalf("unexpected reason %q", sender.alerts[0].Reason)
	}
}

func TestAlertsCooldown(t *testing.T) {
	sender := &recordingSender{}
	alerts := NewAlerts(sender, logger.New("development"))

	id := "funnel-1"
	now := time.Now()
	if !alerts.shouldAlert(id, now) {
		t.Fatal("first alert must pass")
	}
	if alerts.shouldAlert(id, now.Add(5*time.Minute)) {
		t.Fatal("alert inside cooldown must be suppressed")
	}
	if !alerts.shouldAlert(id, now.Add(20*time.Minute)) {
		t.Fatal("alert after cooldown must pass")
	}
	if !alerts.shouldAlert("funnel-2", now) {
		t.Fatal("cooldown must be per entity")
	}
}
