package service

import (
	"context"
	"testing"

	"serenata_backend/internal/funnel/domain"
	"serenata_backend/platform/apperr"

	"github.com/google/uuid"
)

func TestPauseBlocksAndResumeRestores(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()

	if err := env.svc.SetPaused(context.Background(), e.ID, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.svc.SendNow(context.Background(), e.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error while paused, got %v", err)
	}

	if err := env.svc.SetPaused(context.Background(), e.ID, false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := env.svc.SendNow(context.Background(), e.ID); err != nil {
		t.Fatalf("send after resume: %v", err)
	}
	if env.sender.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", env.sender.count())
	}

	cached, _ := env.cache.Get(e.ID)
	if cached.IsPaused {
		t.Fatal("cache must reflect resume")
	}
}

func TestSetPausedIdempotent(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()

	for i := 0; i < 3; i++ {
		if err := env.svc.SetPaused(context.Background(), e.ID, true); err != nil {
			t.Fatalf("pause %d: %v", i, err)
		}
	}
	entity, _ := env.store.GetByID(context.Background(), e.ID)
	if !entity.IsPaused {
		t.Fatal("entity must stay paused")
	}
}

func TestFinalStepExhaustsCampaign(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()

	if _, err := env.svc.SendStep(context.Background(), e.ID, domain.MaxStep); err != nil {
		t.Fatalf("SendStep: %v", err)
	}

	moved, _ := env.store.GetByID(context.Background(), e.ID)
	if moved.Bucket != domain.BucketExited {
		t.Fatalf("expected automated exit after final step, got %s", moved.Bucket)
	}
	if moved.ExitReason == nil || *moved.ExitReason != domain.ExitReasonExhausted {
		t.Fatalf("expected exhausted reason, got %v", moved.ExitReason)
	}
}

func TestScheduledStepSendsFollowUp(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()
	e.CurrentStep = 2
	env.store.put(e)

	if _, err := env.svc.SendStep(context.Background(), e.ID, 2); err != nil {
		t.Fatalf("SendStep: %v", err)
	}

	history, _ := env.store.ListMessages(context.Background(), e.ID)
	if len(history) != 1 || history[0].Type != domain.MessageFollowUp1 {
		t.Fatalf("expected follow_up_1, got %+v", history)
	}

	updated, _ := env.store.GetByID(context.Background(), e.ID)
	if updated.CurrentStep != 3 {
		t.Fatalf("expected advance to step 3, got %d", updated.CurrentStep)
	}
}

func TestScheduledStepSkipsPaidOrder(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()
	e.CurrentStep = 2
	e.OrderStatus = domain.OrderStatusPaid
	env.store.put(e)

	if _, err := env.svc.SendStep(context.Background(), e.ID, 2); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for paid order, got %v", err)
	}
	if env.sender.count() != 0 {
		t.Fatal("no delivery expected")
	}
}

func TestSendSchedulesFollowUpTask(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()

	if _, err := env.svc.SendNow(context.Background(), e.ID); err != nil {
		t.Fatalf("SendNow: %v", err)
	}

	tasks := env.sched.scheduled()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", len(tasks))
	}
	if tasks[0].payload.FunnelID != e.ID.String() || tasks[0].payload.Step != 2 {
		t.Fatalf("unexpected task payload %+v", tasks[0].payload)
	}

	updated, _ := env.store.GetByID(context.Background(), e.ID)
	if updated.NextDispatchAt == nil {
		t.Fatal("next dispatch must be recorded")
	}
	if !tasks[0].runAt.Equal(*updated.NextDispatchAt) {
		t.Fatalf("task time %v must match next_dispatch_at %v", tasks[0].runAt, *updated.NextDispatchAt)
	}
}

func TestFinalStepSchedulesNothing(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()

	if _, err := env.svc.SendStep(context.Background(), e.ID, domain.MaxStep); err != nil {
		t.Fatalf("SendStep: %v", err)
	}
	if got := env.sched.scheduled(); len(got) != 0 {
		t.Fatalf("exhausted campaign must not schedule, got %d tasks", len(got))
	}
}

func TestReloadBoardPopulatesBuckets(t *testing.T) {
	env := newTestEnv()
	a := env.seedPending()
	b := env.seedPending()
	exited := env.seedPending()
	exited.Bucket = domain.BucketExited
	env.store.put(exited)

	if err := env.svc.ReloadBoard(context.Background()); err != nil {
		t.Fatalf("ReloadBoard: %v", err)
	}

	pending, err := env.svc.Board(domain.BucketPending)
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	got := map[string]bool{}
	for _, e := range pending {
		got[e.ID.String()] = true
	}
	if !got[a.ID.String()] || !got[b.ID.String()] {
		t.Fatal("pending bucket missing seeded entities")
	}

	ex, _ := env.svc.Board(domain.BucketExited)
	if len(ex) != 1 || ex[0].ID != exited.ID {
		t.Fatalf("expected 1 exited entity, got %d", len(ex))
	}
}

func TestBoardRejectsUnknownBucket(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.Board(domain.Bucket("archived")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnrolledEntityAppearsOnBoard(t *testing.T) {
	env := newTestEnv()

	created, err := env.svc.CreateForOrder(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}

	pending, err := env.svc.Board(domain.BucketPending)
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	for _, e := range pending {
		if e.ID == created.ID {
			return
		}
	}
	t.Fatalf("enrolled entity %s missing from pending board (%d entities)", created.ID, len(pending))
}

func TestCreateForOrderIdempotent(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()

	again, err := env.svc.CreateForOrder(context.Background(), e.OrderID)
	if err != nil {
		t.Fatalf("CreateForOrder: %v", err)
	}
	if again.ID != e.ID {
		t.Fatalf("re-enrolling must return the existing entity, got %s want %s", again.ID, e.ID)
	}
}

func TestDeleteRemovesEntityAndCache(t *testing.T) {
	env := newTestEnv()
	e := env.seedPending()

	if err := env.svc.Delete(context.Background(), e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := env.store.GetByID(context.Background(), e.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := env.cache.Get(e.ID); ok {
		t.Fatal("cache entry must be removed")
	}
}
