package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"serenata_backend/internal/auth"
	"serenata_backend/internal/email"
	"serenata_backend/internal/events"
	"serenata_backend/internal/funnel"
	apphttp "serenata_backend/internal/http"
	"serenata_backend/internal/http/router"
	"serenata_backend/internal/orders/gateway"
	ordersrepo "serenata_backend/internal/orders/repository"
	"serenata_backend/internal/scheduler"
	"serenata_backend/internal/whatsapp"
	"serenata_backend/migrations"
	"serenata_backend/platform/config"
	"serenata_backend/platform/db"
	"serenata_backend/platform/logger"
	"serenata_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	ordersRepo := ordersrepo.New(pool)
	resolver, err := gateway.NewResolver(cfg)
	if err != nil {
		log.Error("failed to initialize checkout resolver", "error", err)
		panic("failed to initialize checkout resolver: " + err.Error())
	}
	log.Info("checkout gateway configured", "gateway", resolver.Gateway())

	whatsappClient := whatsapp.NewClient(cfg, log)
	if whatsappClient == nil {
		log.Warn("WHATSAPP_URL not configured; outbound sends will be rejected")
	}

	dispatchScheduler, closeScheduler := initDispatchScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	funnelModule := funnel.NewModule(pool, ordersRepo, resolver, whatsappClient, dispatchScheduler, cfg, eventBus, val, log)
	authModule := auth.NewModule(cfg, val)

	// Alert emails for failed dispatches
	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}
	email.NewAlerts(sender, log).RegisterHandlers(eventBus)

	// Warm the board cache before serving
	if err := withRetry(ctx, log, "board load", 5, 2*time.Second, func() error {
		return funnelModule.Service().ReloadBoard(ctx)
	}); err != nil {
		log.Error("failed to load funnel board", "error", err)
		panic("failed to load funnel board: " + err.Error())
	}
	log.Info("funnel board loaded")

	// Reconciliation loop runs alongside the server; it owns automatic
	// pending→completed convergence.
	go funnelModule.Reconciler().Run(ctx)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			authModule,
			funnelModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initDispatchScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.DispatchScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; follow-up dispatches rely on the due sweep only")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize dispatch scheduler", "error", err)
		panic("failed to initialize dispatch scheduler: " + err.Error())
	}
	return client, func() { _ = client.Close() }
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
