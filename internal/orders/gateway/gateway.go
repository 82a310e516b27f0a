// Package gateway builds payment checkout URLs for funnel messages. A stored
// URL is only trusted when it came from a real gateway; internally generated
// placeholders are regenerated from canonical inputs at send time.
package gateway

import (
	"strings"

	"serenata_backend/internal/orders/repository"
	"serenata_backend/platform/apperr"
	"serenata_backend/platform/config"
	"serenata_backend/platform/phone"

	"github.com/google/uuid"
)

// Builder generates a checkout URL from canonical order inputs.
type Builder interface {
	// CheckoutURL builds the gateway URL for the order. whatsapp is already
	// normalized; locale falls back to pt-BR when empty.
	CheckoutURL(orderID uuid.UUID, email, whatsapp, locale string) string
	// Name identifies the gateway.
	Name() string
}

// Resolver picks the usable checkout URL for an order, regenerating it when
// the persisted one cannot be trusted.
type Resolver struct {
	builder Builder
}

// NewResolver creates a Resolver for the configured gateway.
func NewResolver(cfg config.GatewayConfig) (*Resolver, error) {
	switch strings.ToLower(cfg.GetCheckoutGateway()) {
	case "cakto", "":
		return &Resolver{builder: NewCakto(cfg)}, nil
	case "hotmart":
		return &Resolver{builder: NewHotmart(cfg)}, nil
	default:
		return nil, apperr.Validation("unknown checkout gateway: " + cfg.GetCheckoutGateway())
	}
}

// Gateway returns the name of the configured gateway.
func (r *Resolver) Gateway() string {
	return r.builder.Name()
}

// Resolve returns the checkout URL to embed in a message. The persisted URL is
// used only when it was generated by a gateway; otherwise a fresh URL is built
// from the order's canonical inputs.
func (r *Resolver) Resolve(order repository.Order) string {
	if order.CheckoutURL != nil && *order.CheckoutURL != "" && order.CheckoutURLSource == repository.URLSourceGateway {
		return *order.CheckoutURL
	}
	normalized := phone.NormalizeE164(order.CustomerWhatsApp)
	return r.builder.CheckoutURL(order.ID, order.CustomerEmail, normalized, order.Locale)
}
