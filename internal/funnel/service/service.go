// Package service hosts the funnel orchestration layer: the dispatcher, the
// transition engine, and the board service the HTTP and scheduler surfaces
// talk to.
package service

import (
	"context"

	"serenata_backend/internal/funnel/board"
	"serenata_backend/internal/funnel/domain"
	"serenata_backend/internal/funnel/repository"
	"serenata_backend/platform/apperr"
	"serenata_backend/platform/logger"

	"github.com/google/uuid"
)

// Service is the operator-facing funnel API. It owns the board cache: every
// mutation flows back through it so the board reflects reality without a
// full reload on each request.
type Service struct {
	store      repository.Store
	cache      *board.Cache
	dispatcher *Dispatcher
	engine     *Engine
	log        *logger.Logger
}

// New creates the funnel service.
func New(store repository.Store, cache *board.Cache, dispatcher *Dispatcher, engine *Engine, log *logger.Logger) *Service {
	return &Service{
		store:      store,
		cache:      cache,
		dispatcher: dispatcher,
		engine:     engine,
		log:        log,
	}
}

// Engine exposes the transition engine for collaborators that move entities
// directly, like the reconciler.
func (s *Service) Engine() *Engine { return s.engine }

// ReloadBoard replaces the cached board with fresh database state for all
// three buckets.
func (s *Service) ReloadBoard(ctx context.Context) error {
	for _, bucket := range domain.Buckets() {
		entities, err := s.store.ListByBucket(ctx, bucket)
		if err != nil {
			return err
		}
		s.cache.ReplaceBucket(bucket, entities)
	}
	return nil
}

// Board returns the cached snapshot for one bucket, newest first.
func (s *Service) Board(bucket domain.Bucket) ([]domain.Entity, error) {
	if !domain.IsKnownBucket(bucket) {
		return nil, apperr.Validation("unknown lifecycle bucket")
	}
	return s.cache.Snapshot(bucket), nil
}

// Get returns a single entity, preferring the cache and falling back to the
// store for entities not yet loaded.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	if e, ok := s.cache.Get(id); ok {
		return e, nil
	}
	return s.store.GetByID(ctx, id)
}

// Messages returns the dispatch history for an entity, newest first.
func (s *Service) Messages(ctx context.Context, id uuid.UUID) ([]domain.Message, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, id)
}

// TogglePause flips the entity's pause flag and returns the new state.
func (s *Service) TogglePause(ctx context.Context, id uuid.UUID) (bool, error) {
	paused, err := s.store.TogglePause(ctx, id)
	if err != nil {
		return false, err
	}
	s.cache.Patch(id, func(e *domain.Entity) {
		e.IsPaused = paused
	})
	return paused, nil
}

// SetPaused forces the pause flag to the given state, idempotently.
func (s *Service) SetPaused(ctx context.Context, id uuid.UUID, paused bool) error {
	entity, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entity.IsPaused == paused {
		return nil
	}
	_, err = s.store.TogglePause(ctx, id)
	if err != nil {
		return err
	}
	s.cache.Patch(id, func(e *domain.Entity) {
		e.IsPaused = paused
	})
	return nil
}

// Move transitions an entity on operator authority.
func (s *Service) Move(ctx context.Context, id uuid.UUID, to domain.Bucket, exitReason string) error {
	return s.engine.MoveTo(ctx, id, to, true, exitReason)
}

// Delete removes the entity and its message history.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

// CreateForOrder enrolls a pending order into the funnel. Re-enrolling an
// already tracked order is a no-op returning the existing entity.
func (s *Service) CreateForOrder(ctx context.Context, orderID uuid.UUID) (domain.Entity, error) {
	id, err := s.store.CreateForOrder(ctx, orderID)
	if err != nil {
		return domain.Entity{}, err
	}
	entity, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	s.cache.Upsert(entity)
	return entity, nil
}

// SendNow dispatches the entity's current step on operator request.
func (s *Service) SendNow(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	msg, err := s.dispatcher.SendOne(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	s.exitIfExhausted(ctx, id)
	return msg, nil
}

// SendStep dispatches a specific campaign step on operator request.
func (s *Service) SendStep(ctx context.Context, id uuid.UUID, step int) (domain.Message, error) {
	msg, err := s.dispatcher.SendStep(ctx, id, step)
	if err != nil {
		return domain.Message{}, err
	}
	if step >= domain.MaxStep {
		s.exitIfExhausted(ctx, id)
	}
	return msg, nil
}

// SendBulk dispatches the first campaign message to every eligible entity in
// the given set, sequentially.
func (s *Service) SendBulk(ctx context.Context, ids []uuid.UUID, progress ProgressFunc) (BulkResult, error) {
	return s.dispatcher.SendBulk(ctx, ids, progress)
}

// DispatchAllPending runs a bulk send over the entire pending bucket.
func (s *Service) DispatchAllPending(ctx context.Context, progress ProgressFunc) (BulkResult, error) {
	pending := s.cache.Snapshot(domain.BucketPending)
	ids := make([]uuid.UUID, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.ID)
	}
	return s.dispatcher.SendBulk(ctx, ids, progress)
}

// exitIfExhausted retires an entity whose last campaign step has been sent
// while the order is still unpaid.
func (s *Service) exitIfExhausted(ctx context.Context, id uuid.UUID) {
	entity, err := s.store.GetByID(ctx, id)
	if err != nil {
		return
	}
	if entity.Bucket != domain.BucketPending {
		return
	}
	if entity.CurrentStep < domain.MaxStep || entity.NextDispatchAt != nil {
		return
	}
	history, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return
	}
	if !domain.HasSentStep(history, domain.MaxStep) {
		return
	}
	if err := s.engine.Exit(ctx, id, false, domain.ExitReasonExhausted); err != nil {
		if !apperr.Is(err, apperr.KindConflict) {
			s.log.DatabaseError("exhaustion exit", err)
		}
	}
}
