package email

import (
	"context"
	"sync"
	"time"

	"serenata_backend/internal/events"
	"serenata_backend/platform/logger"
)

// alertCooldown bounds how often one entity may trigger an alert email.
const alertCooldown = 15 * time.Minute

// Alerts subscribes to dispatch failures and notifies the operator by email.
// A per-entity cooldown keeps a flapping channel from flooding the inbox.
type Alerts struct {
	sender Sender
	log    *logger.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewAlerts creates the alert subscriber.
func NewAlerts(sender Sender, log *logger.Logger) *Alerts {
	return &Alerts{
		sender:   sender,
		log:      log,
		lastSent: make(map[string]time.Time),
	}
}

// RegisterHandlers subscribes the alert handlers on the event bus.
func (a *Alerts) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.FunnelMessageFailed{}.EventName(), events.HandlerFunc(a.onDispatchFailed))
}

func (a *Alerts) onDispatchFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(events.FunnelMessageFailed)
	if !ok {
		return nil
	}

	if !a.shouldAlert(failed.FunnelID.String(), time.Now()) {
		return nil
	}

	err := a.sender.SendDispatchAlert(ctx, DispatchAlert{
		FunnelID:    failed.FunnelID.String(),
		OrderID:     failed.OrderID.String(),
		MessageType: failed.MessageType,
		Reason:      failed.Reason,
		OccurredAt:  failed.OccurredAt(),
	})
	if err != nil {
		a.log.Error("dispatch alert email failed", "error", err.Error())
	}
	return err
}

func (a *Alerts) shouldAlert(funnelID string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.lastSent[funnelID]; ok && now.Sub(last) < alertCooldown {
		return false
	}
	a.lastSent[funnelID] = now
	return true
}
