// Package reconciler converges the pending bucket against authoritative
// order status. Customers pay through the gateway without telling us; the
// loop notices and completes the funnel instead of sending another nudge.
package reconciler

import (
	"context"
	"sync"
	"time"

	"serenata_backend/internal/funnel/board"
	"serenata_backend/internal/funnel/domain"
	ordersrepo "serenata_backend/internal/orders/repository"
	"serenata_backend/platform/apperr"
	"serenata_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// statusChunkSize bounds a single batch status query.
const statusChunkSize = 100

// PendingLister lists the entities of one lifecycle bucket.
type PendingLister interface {
	ListByBucket(ctx context.Context, bucket domain.Bucket) ([]domain.Entity, error)
}

// OrderReader answers authoritative order status in batch.
type OrderReader interface {
	GetStatusBatch(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]ordersrepo.Order, error)
}

// Mover performs the automated completion transition.
type Mover interface {
	Complete(ctx context.Context, id uuid.UUID, manual bool) error
}

// Stats summarizes one reconciliation pass.
type Stats struct {
	Scanned   int
	Completed int
	Skipped   int
	Failed    int
}

// Reconciler periodically sweeps pending entities and completes those whose
// orders have been paid.
type Reconciler struct {
	store    PendingLister
	orders   OrderReader
	mover    Mover
	cache    *board.Cache
	log      *logger.Logger
	interval time.Duration
}

// New creates a reconciler running every interval.
func New(store PendingLister, orders OrderReader, mover Mover, cache *board.Cache, log *logger.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		store:    store,
		orders:   orders,
		mover:    mover,
		cache:    cache,
		log:      log,
		interval: interval,
	}
}

// Run sweeps immediately, then on every tick until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	stats, err := r.RunOnce(ctx)
	if err != nil {
		r.log.Error("reconcile sweep failed", "error", err.Error())
		return
	}
	if stats.Completed > 0 || stats.Failed > 0 {
		r.log.Info("reconcile sweep",
			"scanned", stats.Scanned,
			"completed", stats.Completed,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
		)
	}
}

// RunOnce performs a single reconciliation pass. Entities with an in-flight
// move are skipped and picked up on the next pass; one entity's failure
// never aborts the sweep.
func (r *Reconciler) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	pending, err := r.store.ListByBucket(ctx, domain.BucketPending)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(pending)
	if len(pending) == 0 {
		return stats, nil
	}

	orderIDs := make([]uuid.UUID, 0, len(pending))
	for _, e := range pending {
		orderIDs = append(orderIDs, e.OrderID)
	}

	statuses, err := r.fetchStatuses(ctx, orderIDs)
	if err != nil {
		return stats, err
	}

	for _, entity := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		order, ok := statuses[entity.OrderID]
		if !ok {
			r.log.Warn("reconcile: order missing",
				"funnel_id", entity.ID.String(),
				"order_id", entity.OrderID.String(),
			)
			stats.Skipped++
			continue
		}
		if order.Status != domain.OrderStatusPaid {
			continue
		}

		if r.cache.Moving(entity.ID) {
			// An operator drag is mid-flight; next pass settles it.
			stats.Skipped++
			continue
		}

		err := r.mover.Complete(ctx, entity.ID, false)
		switch {
		case err == nil:
			stats.Completed++
		case apperr.Is(err, apperr.KindConflict):
			// Lost the race against a concurrent move. Benign.
			stats.Skipped++
		default:
			stats.Failed++
			r.log.Error("reconcile: completion failed",
				"funnel_id", entity.ID.String(),
				"error", err.Error(),
			)
		}
	}

	return stats, nil
}

// fetchStatuses queries order status in bounded chunks, concurrently.
func (r *Reconciler) fetchStatuses(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]ordersrepo.Order, error) {
	merged := make(map[uuid.UUID]ordersrepo.Order, len(orderIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(orderIDs); start += statusChunkSize {
		end := start + statusChunkSize
		if end > len(orderIDs) {
			end = len(orderIDs)
		}
		chunk := orderIDs[start:end]

		g.Go(func() error {
			statuses, err := r.orders.GetStatusBatch(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			for id, o := range statuses {
				merged[id] = o
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}
