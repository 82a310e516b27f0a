package scheduler

import (
	"context"
	"fmt"

	"serenata_backend/internal/funnel/domain"
	"serenata_backend/platform/apperr"
	"serenata_backend/platform/config"
	"serenata_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// StepSender dispatches one campaign step, re-validating eligibility.
type StepSender interface {
	SendStep(ctx context.Context, id uuid.UUID, step int) (domain.Message, error)
}

// Worker consumes scheduled funnel tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sender StepSender
	log    *logger.Logger
}

// NewWorker creates the asynq worker for funnel dispatch tasks.
func NewWorker(cfg config.SchedulerConfig, sender StepSender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		sender: sender,
		log:    log,
	}

	mux.HandleFunc(TaskFunnelDispatch, w.handleFunnelDispatch)

	return w, nil
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleFunnelDispatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFunnelDispatchPayload(task)
	if err != nil {
		return err
	}

	funnelID, err := uuid.Parse(payload.FunnelID)
	if err != nil {
		return err
	}

	_, err = w.sender.SendStep(ctx, funnelID, payload.Step)
	switch {
	case err == nil:
		return nil
	case apperr.Is(err, apperr.KindValidation),
		apperr.Is(err, apperr.KindConflict),
		apperr.Is(err, apperr.KindNotFound):
		// The entity moved on since scheduling: paused, paid, already
		// sent, or deleted. Not a retryable failure.
		w.log.Info("scheduled dispatch superseded",
			"funnel_id", payload.FunnelID,
			"step", payload.Step,
			"reason", err.Error(),
		)
		return nil
	default:
		return err
	}
}
