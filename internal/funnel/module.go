// Package funnel provides the WhatsApp re-engagement funnel domain module.
package funnel

import (
	"serenata_backend/internal/events"
	"serenata_backend/internal/funnel/board"
	"serenata_backend/internal/funnel/handler"
	"serenata_backend/internal/funnel/reconciler"
	"serenata_backend/internal/funnel/repository"
	"serenata_backend/internal/funnel/service"
	apphttp "serenata_backend/internal/http"
	"serenata_backend/internal/orders/gateway"
	ordersrepo "serenata_backend/internal/orders/repository"
	"serenata_backend/internal/scheduler"
	"serenata_backend/platform/config"
	"serenata_backend/platform/logger"
	"serenata_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the funnel domain module.
type Module struct {
	handler    *handler.Handler
	service    *service.Service
	reconciler *reconciler.Reconciler
}

// NewModule creates a new funnel module with all dependencies wired. The
// order repository and checkout resolver come from the orders module; sender
// is the outbound WhatsApp channel; sched queues follow-up dispatch tasks
// and may be nil when redis is not configured.
func NewModule(pool *pgxpool.Pool, orders *ordersrepo.Repository, resolver *gateway.Resolver, sender service.Sender, sched scheduler.DispatchScheduler, cfg config.FunnelConfig, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	cache := board.NewCache()

	dispatcher := service.NewDispatcher(
		repo, orders, resolver, sender, cache, eventBus, sched, log,
		cfg.GetFunnelStepDelays(), cfg.GetBulkDelayMin(), cfg.GetBulkDelayMax(),
	)
	engine := service.NewEngine(repo, orders, cache, eventBus, log)
	engine.RegisterHandlers(eventBus)
	svc := service.New(repo, cache, dispatcher, engine, log)

	rec := reconciler.New(repo, orders, engine, cache, log, cfg.GetReconcileInterval())

	h := handler.New(svc, val, orders, resolver)

	return &Module{
		handler:    h,
		service:    svc,
		reconciler: rec,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "funnel"
}

// Service returns the service layer for external use (scheduler worker).
func (m *Module) Service() *service.Service {
	return m.service
}

// Reconciler returns the reconciliation loop for the composition root to run.
func (m *Module) Reconciler() *reconciler.Reconciler {
	return m.reconciler
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	funnel := ctx.Protected.Group("/funnel")
	m.handler.RegisterRoutes(funnel)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
