package service

import (
	"context"
	"errors"
	"fmt"

	"serenata_backend/internal/events"
	"serenata_backend/internal/funnel/board"
	"serenata_backend/internal/funnel/domain"
	"serenata_backend/internal/funnel/repository"
	"serenata_backend/platform/apperr"
	"serenata_backend/platform/logger"

	"github.com/google/uuid"
)

// Engine moves entities between lifecycle buckets. Every move, manual or
// automated, goes through MoveTo so the legality table and side effects are
// applied in exactly one place.
type Engine struct {
	store  repository.Store
	orders OrderReader
	cache  *board.Cache
	bus    events.Bus
	log    *logger.Logger
}

// NewEngine creates a transition engine.
func NewEngine(store repository.Store, orders OrderReader, cache *board.Cache, bus events.Bus, log *logger.Logger) *Engine {
	return &Engine{store: store, orders: orders, cache: cache, bus: bus, log: log}
}

// MoveTo transitions the entity into the target bucket. Manual moves carry
// operator authority; automated moves additionally re-check the order status
// before completing, so a stale snapshot can never produce a false
// completion. A concurrent in-flight move on the same entity is rejected
// with a conflict rather than silently lost.
func (en *Engine) MoveTo(ctx context.Context, id uuid.UUID, to domain.Bucket, manual bool, exitReason string) error {
	entity, err := en.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := domain.CanTransition(entity.Bucket, to, manual); err != nil {
		return err
	}

	if !manual && to == domain.BucketCompleted {
		order, err := en.orders.GetStatus(ctx, entity.OrderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPaid {
			return apperr.Conflict(fmt.Sprintf("order is %s, not paid", order.Status))
		}
	}

	if !en.cache.MarkMoving(id) {
		return apperr.Conflict("a move is already in flight for this entity")
	}
	defer en.cache.ClearMoving(id)

	if to == domain.BucketExited && exitReason == "" {
		if manual {
			exitReason = domain.ExitReasonManual
		} else {
			exitReason = domain.ExitReasonExhausted
		}
	}
	fields := domain.FieldsFor(to, &exitReason)

	if _, err := en.store.Move(ctx, id, to, fields); err != nil {
		if errors.Is(err, repository.ErrAlreadyMoved) {
			// Someone else won the race; the database state is already
			// what this move wanted or newer. Reload settles the board.
			en.log.Transition(id.String(), string(entity.Bucket), string(to), manual)
			en.cache.ApplyMove(id, to, fields)
			return nil
		}
		return err
	}

	if to == domain.BucketExited {
		if _, err := en.store.CancelPendingMessages(ctx, id); err != nil {
			en.log.DatabaseError("cancel pending messages", err)
		}
	}

	en.cache.ApplyMove(id, to, fields)

	en.bus.Publish(ctx, events.FunnelMoved{
		BaseEvent: events.NewBaseEvent(),
		FunnelID:  entity.ID,
		OrderID:   entity.OrderID,
		From:      string(entity.Bucket),
		To:        string(to),
		Manual:    manual,
	})
	en.log.Transition(id.String(), string(entity.Bucket), string(to), manual)

	return nil
}

// Complete moves the entity to completed on behalf of an authoritative paid
// observation.
func (en *Engine) Complete(ctx context.Context, id uuid.UUID, manual bool) error {
	return en.MoveTo(ctx, id, domain.BucketCompleted, manual, "")
}

// Exit moves the entity to exited with the given reason.
func (en *Engine) Exit(ctx context.Context, id uuid.UUID, manual bool, reason string) error {
	return en.MoveTo(ctx, id, domain.BucketExited, manual, reason)
}

// RegisterHandlers subscribes the engine to stale-paid detections, so a paid
// order observed during a rejected send completes immediately instead of
// waiting for the next reconciliation sweep.
func (en *Engine) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.OrderPaidDetected{}.EventName(), events.HandlerFunc(en.onOrderPaid))
}

func (en *Engine) onOrderPaid(ctx context.Context, event events.Event) error {
	paid, ok := event.(events.OrderPaidDetected)
	if !ok {
		return nil
	}

	err := en.Complete(ctx, paid.FunnelID, false)
	switch {
	case err == nil:
		return nil
	case apperr.Is(err, apperr.KindConflict), apperr.Is(err, apperr.KindNotFound):
		// Already completed, mid-move, or deleted since detection.
		return nil
	default:
		return err
	}
}
