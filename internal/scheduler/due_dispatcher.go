package scheduler

import (
	"context"
	"errors"
	"time"

	"serenata_backend/internal/funnel/domain"
	"serenata_backend/internal/funnel/repository"
	"serenata_backend/platform/config"
	"serenata_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	duePollInterval = 30 * time.Second
	dueBatchSize    = 50
)

// DueDispatcher polls for entities whose scheduled dispatch time has arrived
// and enqueues a dispatch task for each. The worker re-validates eligibility,
// so an entity picked up twice is sent at most once.
type DueDispatcher struct {
	client *asynq.Client
	queue  string
	repo   *repository.Repository
	log    *logger.Logger
}

// NewDueDispatcher creates the due-entity poller.
func NewDueDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*DueDispatcher, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &DueDispatcher{
		client: asynq.NewClient(opt),
		queue:  queue,
		repo:   repository.New(pool),
		log:    log,
	}, nil
}

// Close releases the underlying asynq client.
func (d *DueDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Run polls until the context is cancelled.
func (d *DueDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(duePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.sweep(ctx)
	}
}

func (d *DueDispatcher) sweep(ctx context.Context) {
	due, err := d.repo.ListDue(ctx, time.Now(), dueBatchSize)
	if err != nil {
		d.log.Warn("due sweep failed", "error", err.Error())
		return
	}

	for _, entity := range due {
		d.enqueue(ctx, entity)
	}
}

func (d *DueDispatcher) enqueue(ctx context.Context, entity domain.Entity) {
	task, err := NewFunnelDispatchTask(FunnelDispatchPayload{
		FunnelID: entity.ID.String(),
		Step:     entity.CurrentStep,
	})
	if err != nil {
		d.log.Error("dispatch task build failed", "funnel_id", entity.ID.String(), "error", err.Error())
		return
	}

	// Unique for the poll window so a slow worker doesn't accumulate
	// duplicate tasks for the same entity.
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.Unique(duePollInterval),
	)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		d.log.Warn("dispatch enqueue failed", "funnel_id", entity.ID.String(), "error", err.Error())
	}
}
