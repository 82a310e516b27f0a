// Package auth provides the operator authentication module.
package auth

import (
	"serenata_backend/internal/auth/handler"
	"serenata_backend/internal/auth/service"
	apphttp "serenata_backend/internal/http"
	"serenata_backend/platform/config"
	"serenata_backend/platform/validator"
)

// Module represents the auth module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new auth module.
func NewModule(cfg config.AuthConfig, val *validator.Validator) *Module {
	svc := service.New(cfg)
	h := handler.New(svc, val)
	return &Module{handler: h, service: svc}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "auth"
}

// RegisterRoutes registers the auth routes with the strict rate limiter.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	auth := ctx.V1.Group("/auth")
	auth.Use(ctx.AuthRateLimiter.RateLimit())
	m.handler.RegisterRoutes(auth)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
