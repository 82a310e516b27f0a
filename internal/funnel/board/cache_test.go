package board

import (
	"testing"
	"time"

	"serenata_backend/internal/funnel/domain"

	"github.com/google/uuid"
)

func seeded(bucket domain.Bucket) (*Cache, domain.Entity) {
	e := domain.Entity{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		Bucket:    bucket,
		CreatedAt: time.Now(),
	}
	c := NewCache()
	c.ReplaceBucket(bucket, []domain.Entity{e})
	return c, e
}

func TestPatchUpdatesFields(t *testing.T) {
	c, e := seeded(domain.BucketPending)

	if !c.Patch(e.ID, func(entity *domain.Entity) {
		entity.MessagesCount = 3
	}) {
		t.Fatalf("expected patch to apply")
	}

	got, ok := c.Get(e.ID)
	if !ok || got.MessagesCount != 3 {
		t.Fatalf("expected messages count 3, got %+v ok=%v", got, ok)
	}
}

func TestPatchCannotChangeBucket(t *testing.T) {
	c, e := seeded(domain.BucketPending)

	c.Patch(e.ID, func(entity *domain.Entity) {
		entity.Bucket = domain.BucketCompleted
	})

	got, _ := c.Get(e.ID)
	if got.Bucket != domain.BucketPending {
		t.Fatalf("patch must not change bucket, got %s", got.Bucket)
	}
}

func TestUpsertInsertsUnknownEntity(t *testing.T) {
	c := NewCache()
	e := domain.Entity{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		Bucket:    domain.BucketPending,
		CreatedAt: time.Now(),
	}

	c.Upsert(e)

	got, ok := c.Get(e.ID)
	if !ok || got.ID != e.ID {
		t.Fatalf("expected upserted entity, got %+v ok=%v", got, ok)
	}
	snap := c.Snapshot(domain.BucketPending)
	if len(snap) != 1 || snap[0].ID != e.ID {
		t.Fatalf("upserted entity missing from bucket snapshot: %+v", snap)
	}
}

func TestUpsertKeepsCachedBucket(t *testing.T) {
	c, e := seeded(domain.BucketCompleted)

	stale := e
	stale.Bucket = domain.BucketPending
	stale.MessagesCount = 2
	c.Upsert(stale)

	got, _ := c.Get(e.ID)
	if got.Bucket != domain.BucketCompleted {
		t.Fatalf("upsert must not change bucket, got %s", got.Bucket)
	}
	if got.MessagesCount != 2 {
		t.Fatalf("upsert must apply field updates, got %+v", got)
	}
}

func TestApplyMoveWinsOverStalePatch(t *testing.T) {
	c, e := seeded(domain.BucketPending)

	c.ApplyMove(e.ID, domain.BucketCompleted, domain.CompletionFields())
	// A stale optimistic patch from a send completing late.
	c.Patch(e.ID, func(entity *domain.Entity) {
		entity.MessagesCount = 1
	})

	got, _ := c.Get(e.ID)
	if got.Bucket != domain.BucketCompleted {
		t.Fatalf("expected bucket completed, got %s", got.Bucket)
	}
	if got.MessagesCount != 1 {
		t.Fatalf("field patch should still land, got %d", got.MessagesCount)
	}
	if got.NextDispatchAt != nil {
		t.Fatalf("completion must clear next dispatch")
	}
}

func TestMarkMovingRejectsConcurrentClaim(t *testing.T) {
	c, e := seeded(domain.BucketPending)

	if !c.MarkMoving(e.ID) {
		t.Fatalf("first claim must succeed")
	}
	if c.MarkMoving(e.ID) {
		t.Fatalf("second claim must be rejected while in flight")
	}

	c.ClearMoving(e.ID)
	if !c.MarkMoving(e.ID) {
		t.Fatalf("claim must succeed after release")
	}
}

func TestReplaceBucketDropsStaleEntries(t *testing.T) {
	c, e := seeded(domain.BucketPending)

	fresh := domain.Entity{ID: uuid.New(), Bucket: domain.BucketPending, CreatedAt: time.Now()}
	c.ReplaceBucket(domain.BucketPending, []domain.Entity{fresh})

	if _, ok := c.Get(e.ID); ok {
		t.Fatalf("reload must drop entities missing from the fresh load")
	}
	if _, ok := c.Get(fresh.ID); !ok {
		t.Fatalf("reload must keep freshly loaded entities")
	}
}

func TestSnapshotFiltersByBucket(t *testing.T) {
	c := NewCache()
	pending := domain.Entity{ID: uuid.New(), Bucket: domain.BucketPending, CreatedAt: time.Now()}
	exited := domain.Entity{ID: uuid.New(), Bucket: domain.BucketExited, CreatedAt: time.Now()}
	c.ReplaceBucket(domain.BucketPending, []domain.Entity{pending})
	c.ReplaceBucket(domain.BucketExited, []domain.Entity{exited})

	snap := c.Snapshot(domain.BucketPending)
	if len(snap) != 1 || snap[0].ID != pending.ID {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
