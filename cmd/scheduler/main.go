package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"serenata_backend/internal/email"
	"serenata_backend/internal/events"
	"serenata_backend/internal/funnel"
	"serenata_backend/internal/orders/gateway"
	ordersrepo "serenata_backend/internal/orders/repository"
	"serenata_backend/internal/scheduler"
	"serenata_backend/internal/whatsapp"
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

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}
	email.NewAlerts(sender, log).RegisterHandlers(eventBus)

	val := validator.New()

	// Worker-side funnel wiring (no HTTP handlers required).
	ordersRepo := ordersrepo.New(pool)
	resolver, err := gateway.NewResolver(cfg)
	if err != nil {
		log.Error("failed to initialize checkout resolver", "error", err)
		panic("failed to initialize checkout resolver: " + err.Error())
	}
	whatsappClient := whatsapp.NewClient(cfg, log)
	if whatsappClient == nil {
		log.Warn("whatsapp channel not configured; scheduled dispatches will be recorded as rejected")
	}

	dispatchClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize dispatch scheduler", "error", err)
		panic("failed to initialize dispatch scheduler: " + err.Error())
	}
	defer func() { _ = dispatchClient.Close() }()

	funnelModule := funnel.NewModule(pool, ordersRepo, resolver, whatsappClient, dispatchClient, cfg, eventBus, val, log)

	dueDispatcher, err := scheduler.NewDueDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize due dispatcher", "error", err)
		panic("failed to initialize due dispatcher: " + err.Error())
	}
	defer func() { _ = dueDispatcher.Close() }()
	go dueDispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, funnelModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
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
