package gateway

import (
	"net/url"
	"strings"

	"serenata_backend/platform/config"

	"github.com/google/uuid"
)

// Hotmart builds checkout URLs for the Hotmart payment gateway.
type Hotmart struct {
	baseURL   string
	productID string
}

// NewHotmart creates a Hotmart URL builder from configuration.
func NewHotmart(cfg config.GatewayConfig) *Hotmart {
	return &Hotmart{
		baseURL:   strings.TrimRight(cfg.GetHotmartBaseURL(), "/"),
		productID: cfg.GetHotmartProductID(),
	}
}

// Name identifies the gateway.
func (h *Hotmart) Name() string { return "hotmart" }

// CheckoutURL builds the prefilled Hotmart checkout link.
func (h *Hotmart) CheckoutURL(orderID uuid.UUID, email, whatsapp, locale string) string {
	query := url.Values{}
	query.Set("email", email)
	query.Set("phone_number", strings.TrimPrefix(whatsapp, "+"))
	query.Set("sck", orderID.String())
	if locale == "" {
		locale = "pt-BR"
	}
	query.Set("lang", locale)

	return h.baseURL + "/" + url.PathEscape(h.productID) + "?" + query.Encode()
}
