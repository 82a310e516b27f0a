package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"serenata_backend/internal/funnel/board"
	"serenata_backend/internal/funnel/domain"
	ordersrepo "serenata_backend/internal/orders/repository"
	"serenata_backend/platform/apperr"
	"serenata_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLister struct {
	entities []domain.Entity
}

func (f *fakeLister) ListByBucket(_ context.Context, bucket domain.Bucket) ([]domain.Entity, error) {
	var out []domain.Entity
	for _, e := range f.entities {
		if e.Bucket == bucket {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeOrders struct {
	orders map[uuid.UUID]ordersrepo.Order
}

func (f *fakeOrders) GetStatusBatch(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]ordersrepo.Order, error) {
	out := make(map[uuid.UUID]ordersrepo.Order)
	for _, id := range ids {
		if o, ok := f.orders[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

type fakeMover struct {
	mu        sync.Mutex
	completed []uuid.UUID
	err       error
}

func (f *fakeMover) Complete(_ context.Context, id uuid.UUID, manual bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if manual {
		return apperr.Conflict("reconciler must not claim operator authority")
	}
	if f.err != nil {
		return f.err
	}
	f.completed = append(f.completed, id)
	return nil
}

func pendingEntity(orderID uuid.UUID) domain.Entity {
	return domain.Entity{
		ID:          uuid.New(),
		OrderID:     orderID,
		Bucket:      domain.BucketPending,
		CurrentStep: 1,
		OrderStatus: domain.OrderStatusPending,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
}

func TestRunOnceCompletesPaidOrders(t *testing.T) {
	paid := pendingEntity(uuid.New())
	unpaid := pendingEntity(uuid.New())

	lister := &fakeLister{entities: []domain.Entity{paid, unpaid}}
	orders := &fakeOrders{orders: map[uuid.UUID]ordersrepo.Order{
		paid.OrderID:   {ID: paid.OrderID, Status: domain.OrderStatusPaid},
		unpaid.OrderID: {ID: unpaid.OrderID, Status: domain.OrderStatusPending},
	}}
	mover := &fakeMover{}
	cache := board.NewCache()

	r := New(lister, orders, mover, cache, logger.New("development"), time.Minute)
	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if stats.Scanned != 2 {
		t.Fatalf("expected 2 scanned, got %d", stats.Scanned)
	}
	if stats.Completed != 1 {
		t.Fatalf("expected 1 completed, got %d", stats.Completed)
	}
	if len(mover.completed) != 1 || mover.completed[0] != paid.ID {
		t.Fatalf("expected completion of %s, got %v", paid.ID, mover.completed)
	}
}

func TestRunOnceSkipsInFlightMoves(t *testing.T) {
	paid := pendingEntity(uuid.New())

	lister := &fakeLister{entities: []domain.Entity{paid}}
	orders := &fakeOrders{orders: map[uuid.UUID]ordersrepo.Order{
		paid.OrderID: {ID: paid.OrderID, Status: domain.OrderStatusPaid},
	}}
	mover := &fakeMover{}
	cache := board.NewCache()
	cache.ReplaceBucket(domain.BucketPending, []domain.Entity{paid})
	cache.MarkMoving(paid.ID)

	r := New(lister, orders, mover, cache, logger.New("development"), time.Minute)
	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Skipped != 1 || stats.Completed != 0 {
		t.Fatalf("in-flight entity must be skipped: %+v", stats)
	}

	// The next pass converges once the manual move settles.
	cache.ClearMoving(paid.ID)
	stats, err = r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("expected convergence on second pass: %+v", stats)
	}
}

func TestRunOnceTreatsConflictAsBenign(t *testing.T) {
	paid := pendingEntity(uuid.New())

	lister := &fakeLister{entities: []domain.Entity{paid}}
	orders := &fakeOrders{orders: map[uuid.UUID]ordersrepo.Order{
		paid.OrderID: {ID: paid.OrderID, Status: domain.OrderStatusPaid},
	}}
	mover := &fakeMover{err: apperr.Conflict("a move is already in flight for this entity")}
	cache := board.NewCache()

	r := New(lister, orders, mover, cache, logger.New("development"), time.Minute)
	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Skipped != 1 || stats.Failed != 0 {
		t.Fatalf("conflict must count as skipped, not failed: %+v", stats)
	}
}

func TestRunOnceMissingOrderSkipped(t *testing.T) {
	orphan := pendingEntity(uuid.New())

	lister := &fakeLister{entities: []domain.Entity{orphan}}
	orders := &fakeOrders{orders: map[uuid.UUID]ordersrepo.Order{}}
	mover := &fakeMover{}
	cache := board.NewCache()

	r := New(lister, orders, mover, cache, logger.New("development"), time.Minute)
	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Skipped != 1 || len(mover.completed) != 0 {
		t.Fatalf("missing order must be skipped: %+v", stats)
	}
}

func TestRunOnceBatchesLargeBuckets(t *testing.T) {
	var entities []domain.Entity
	orders := &fakeOrders{orders: make(map[uuid.UUID]ordersrepo.Order)}
	for i := 0; i < 250; i++ {
		e := pendingEntity(uuid.New())
		entities = append(entities, e)
		status := domain.OrderStatusPending
		if i%5 == 0 {
			status = domain.OrderStatusPaid
		}
		orders.orders[e.OrderID] = ordersrepo.Order{ID: e.OrderID, Status: status}
	}

	lister := &fakeLister{entities: entities}
	mover := &fakeMover{}
	cache := board.NewCache()

	r := New(lister, orders, mover, cache, logger.New("development"), time.Minute)
	stats, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Completed != 50 {
		t.Fatalf("expected 50 completions, got %d", stats.Completed)
	}
}
