package gateway

import (
	"net/url"
	"strings"

	"serenata_backend/platform/config"

	"github.com/google/uuid"
)

// Cakto builds checkout URLs for the Cakto payment gateway.
type Cakto struct {
	baseURL     string
	productSlug string
}

// NewCakto creates a Cakto URL builder from configuration.
func NewCakto(cfg config.GatewayConfig) *Cakto {
	return &Cakto{
		baseURL:     strings.TrimRight(cfg.GetCaktoBaseURL(), "/"),
		productSlug: cfg.GetCaktoProductSlug(),
	}
}

// Name identifies the gateway.
func (c *Cakto) Name() string { return "cakto" }

// CheckoutURL builds the prefilled Cakto checkout link.
func (c *Cakto) CheckoutURL(orderID uuid.UUID, email, whatsapp, locale string) string {
	query := url.Values{}
	query.Set("email", email)
	query.Set("phone", strings.TrimPrefix(whatsapp, "+"))
	query.Set("external_ref", orderID.String())
	if locale == "" {
		locale = "pt-BR"
	}
	query.Set("lang", locale)

	return c.baseURL + "/" + url.PathEscape(c.productSlug) + "?" + query.Encode()
}
