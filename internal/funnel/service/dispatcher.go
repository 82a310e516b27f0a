package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"serenata_backend/internal/events"
	"serenata_backend/internal/funnel/board"
	"serenata_backend/internal/funnel/domain"
	"serenata_backend/internal/funnel/repository"
	ordersrepo "serenata_backend/internal/orders/repository"
	"serenata_backend/internal/scheduler"
	"serenata_backend/internal/whatsapp"
	"serenata_backend/platform/apperr"
	"serenata_backend/platform/logger"

	"github.com/google/uuid"
)

// OrderReader is the order collaborator contract: authoritative status for
// validation and reconciliation, queryable in batch.
type OrderReader interface {
	GetStatus(ctx context.Context, orderID uuid.UUID) (ordersrepo.Order, error)
	GetStatusBatch(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]ordersrepo.Order, error)
}

// Sender is the outbound WhatsApp channel contract.
type Sender interface {
	Send(ctx context.Context, phone string, message string) whatsapp.SendResult
}

// CheckoutResolver produces the trustworthy checkout URL for an order.
type CheckoutResolver interface {
	Resolve(order ordersrepo.Order) string
}

// DispatchDetail names the entity and order a dispatch error concerns, so no
// failure ever surfaces as a bare generic error.
type DispatchDetail struct {
	FunnelID uuid.UUID `json:"funnelId"`
	OrderID  uuid.UUID `json:"orderId"`
	Reason   string    `json:"reason"`
}

// BulkResult aggregates a sequential bulk dispatch run.
type BulkResult struct {
	Total     int                  `json:"total"`
	Processed int                  `json:"processed"`
	Failed    int                  `json:"failed"`
	Filtered  int                  `json:"filtered"`
	Errors    map[uuid.UUID]string `json:"errors,omitempty"`
}

// ProgressFunc observes incremental bulk progress (entities handled so far
// out of the filtered total).
type ProgressFunc func(done, total int)

// Dispatcher performs single and bulk sends against the outbound channel and
// reflects outcomes into the message log and board cache. It never retries a
// failed send on its own: re-sending a marketing message is an operator call.
type Dispatcher struct {
	store    repository.Store
	orders   OrderReader
	resolver CheckoutResolver
	sender   Sender
	cache    *board.Cache
	bus      events.Bus
	sched    scheduler.DispatchScheduler
	log      *logger.Logger

	delayMin   time.Duration
	delayMax   time.Duration
	stepDelays []time.Duration

	// sleep is injectable so bulk tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewDispatcher creates a dispatcher. stepDelays holds the wait between each
// campaign step and the next; delayMin/delayMax bound the randomized pause
// between consecutive bulk sends. sched queues the follow-up task whenever a
// send sets next_dispatch_at; nil disables task scheduling and leaves
// follow-ups to the due sweep.
func NewDispatcher(store repository.Store, orders OrderReader, resolver CheckoutResolver, sender Sender, cache *board.Cache, bus events.Bus, sched scheduler.DispatchScheduler, log *logger.Logger, stepDelays []time.Duration, delayMin, delayMax time.Duration) *Dispatcher {
	if delayMin <= 0 {
		delayMin = 3 * time.Second
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	if len(stepDelays) == 0 {
		stepDelays = []time.Duration{30 * time.Minute, 24 * time.Hour, 48 * time.Hour}
	}
	return &Dispatcher{
		store:      store,
		orders:     orders,
		resolver:   resolver,
		sender:     sender,
		cache:      cache,
		bus:        bus,
		sched:      sched,
		log:        log,
		delayMin:   delayMin,
		delayMax:   delayMax,
		stepDelays: stepDelays,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SendOne dispatches the entity's current campaign step. Eligibility is
// re-validated immediately before sending so stale board state can never
// trigger a send.
func (d *Dispatcher) SendOne(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	entity, err := d.store.GetByID(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	return d.sendStep(ctx, entity, entity.CurrentStep)
}

// SendStep dispatches a specific campaign step for the entity, validated the
// same way as SendOne.
func (d *Dispatcher) SendStep(ctx context.Context, id uuid.UUID, step int) (domain.Message, error) {
	entity, err := d.store.GetByID(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	return d.sendStep(ctx, entity, step)
}

func (d *Dispatcher) sendStep(ctx context.Context, entity domain.Entity, step int) (domain.Message, error) {
	msgType, err := domain.MessageTypeForStep(step)
	if err != nil {
		return domain.Message{}, apperr.Validation(err.Error()).
			WithDetails(DispatchDetail{FunnelID: entity.ID, OrderID: entity.OrderID, Reason: err.Error()})
	}

	history, err := d.store.ListMessages(ctx, entity.ID)
	if err != nil {
		return domain.Message{}, err
	}

	if elig := domain.CanSendStep(entity, history, step, d.now()); !elig.Valid {
		if entity.OrderStatus == domain.OrderStatusPaid {
			// A stale paid snapshot is a transition trigger, not a send.
			d.bus.Publish(ctx, events.OrderPaidDetected{
				BaseEvent: events.NewBaseEvent(),
				FunnelID:  entity.ID,
				OrderID:   entity.OrderID,
			})
		}
		return domain.Message{}, apperr.Validation(elig.Reason).
			WithDetails(DispatchDetail{FunnelID: entity.ID, OrderID: entity.OrderID, Reason: elig.Reason})
	}

	// Authoritative re-check: the denormalized snapshot may be stale.
	order, err := d.orders.GetStatus(ctx, entity.OrderID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return domain.Message{}, apperr.NotFound("order not found").
				WithDetails(DispatchDetail{FunnelID: entity.ID, OrderID: entity.OrderID, Reason: "order vanished"})
		}
		return domain.Message{}, apperr.Wrap(apperr.KindInternal, "order lookup failed", err).
			WithDetails(DispatchDetail{FunnelID: entity.ID, OrderID: entity.OrderID, Reason: err.Error()})
	}
	if order.Status != domain.OrderStatusPending {
		if order.Status == domain.OrderStatusPaid {
			d.bus.Publish(ctx, events.OrderPaidDetected{
				BaseEvent: events.NewBaseEvent(),
				FunnelID:  entity.ID,
				OrderID:   entity.OrderID,
			})
		}
		reason := fmt.Sprintf("order is %s", order.Status)
		return domain.Message{}, apperr.Validation(reason).
			WithDetails(DispatchDetail{FunnelID: entity.ID, OrderID: entity.OrderID, Reason: reason})
	}

	checkoutURL := d.resolver.Resolve(order)
	body := messageBody(msgType, checkoutURL)

	result := d.sender.Send(ctx, entity.CustomerWhatsApp, body)
	if !result.Success {
		errMsg := result.Error
		_, appendErr := d.store.AppendMessage(ctx, repository.AppendMessageParams{
			FunnelID:     entity.ID,
			Type:         msgType,
			Status:       domain.MessageStatusFailed,
			ErrorMessage: &errMsg,
			ResponseData: result.Body,
		})
		if appendErr != nil {
			d.log.DatabaseError("append failed message", appendErr)
		}

		d.bus.Publish(ctx, events.FunnelMessageFailed{
			BaseEvent:   events.NewBaseEvent(),
			FunnelID:    entity.ID,
			OrderID:     entity.OrderID,
			MessageType: string(msgType),
			Reason:      result.Error,
		})
		d.log.DispatchResult(entity.ID.String(), entity.OrderID.String(), string(msgType), false, result.Error)

		return domain.Message{}, dispatchError(result, entity)
	}

	sentAt := d.now()
	msg, err := d.store.AppendMessage(ctx, repository.AppendMessageParams{
		FunnelID:     entity.ID,
		Type:         msgType,
		Status:       domain.MessageStatusSent,
		SentAt:       &sentAt,
		ResponseData: result.Body,
	})
	if err != nil {
		return domain.Message{}, err
	}

	nextStep := step
	var nextAt *time.Time
	if step < domain.MaxStep {
		nextStep = step + 1
		at := sentAt.Add(d.stepDelayAfter(step))
		nextAt = &at
	}
	if err := d.store.RecordDispatch(ctx, entity.ID, nextStep, nextAt); err != nil {
		d.log.DatabaseError("record dispatch", err)
	}

	if d.sched != nil && nextAt != nil {
		err := d.sched.ScheduleDispatch(ctx, scheduler.FunnelDispatchPayload{
			FunnelID: entity.ID.String(),
			Step:     nextStep,
		}, *nextAt)
		if err != nil {
			// The due sweep picks the entity up from next_dispatch_at.
			d.log.Warn("follow-up scheduling failed",
				"funnel_id", entity.ID.String(),
				"step", nextStep,
				"error", err.Error(),
			)
		}
	}

	d.cache.Patch(entity.ID, func(e *domain.Entity) {
		e.MessagesCount++
		e.LastMessageAt = &sentAt
		if nextStep > e.CurrentStep {
			e.CurrentStep = nextStep
		}
		e.NextDispatchAt = nextAt
	})

	d.bus.Publish(ctx, events.FunnelMessageSent{
		BaseEvent:   events.NewBaseEvent(),
		FunnelID:    entity.ID,
		OrderID:     entity.OrderID,
		MessageType: string(msgType),
		Step:        step,
	})
	d.log.DispatchResult(entity.ID.String(), entity.OrderID.String(), string(msgType), true, "")

	return msg, nil
}

// SendBulk runs a sequential bulk dispatch over the given entities. Input is
// filtered through the eligibility validator first; each remaining entity is
// sent with a randomized inter-send delay, failures isolated per entity, and
// cancellation honored between sends (never mid-send).
func (d *Dispatcher) SendBulk(ctx context.Context, ids []uuid.UUID, progress ProgressFunc) (BulkResult, error) {
	result := BulkResult{Errors: make(map[uuid.UUID]string)}

	eligible := make([]domain.Entity, 0, len(ids))
	for _, id := range ids {
		entity, err := d.store.GetByID(ctx, id)
		if err != nil {
			result.Filtered++
			result.Errors[id] = err.Error()
			continue
		}
		history, err := d.store.ListMessages(ctx, entity.ID)
		if err != nil {
			result.Filtered++
			result.Errors[id] = err.Error()
			continue
		}
		if elig := domain.CanSend(entity, history, d.now()); !elig.Valid {
			result.Filtered++
			result.Errors[id] = elig.Reason
			continue
		}
		eligible = append(eligible, entity)
	}

	result.Total = len(eligible)

	for i, entity := range eligible {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if i > 0 {
			if err := d.sleep(ctx, d.interSendDelay()); err != nil {
				return result, err
			}
		}

		if _, err := d.sendStep(ctx, entity, 1); err != nil {
			result.Failed++
			result.Errors[entity.ID] = err.Error()
		} else {
			result.Processed++
		}

		if progress != nil {
			progress(i+1, result.Total)
		}
	}

	return result, nil
}

func (d *Dispatcher) stepDelayAfter(step int) time.Duration {
	idx := step - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(d.stepDelays) {
		idx = len(d.stepDelays) - 1
	}
	return d.stepDelays[idx]
}

func (d *Dispatcher) interSendDelay() time.Duration {
	spread := d.delayMax - d.delayMin
	if spread <= 0 {
		return d.delayMin
	}
	return d.delayMin + time.Duration(rand.Int63n(int64(spread)))
}

func dispatchError(result whatsapp.SendResult, entity domain.Entity) error {
	detail := DispatchDetail{FunnelID: entity.ID, OrderID: entity.OrderID, Reason: result.Error}
	switch result.Failure {
	case whatsapp.FailureNetwork:
		return apperr.Unavailable("whatsapp channel unreachable").WithDetails(detail)
	case whatsapp.FailureServer:
		return apperr.Internal("whatsapp channel error").WithDetails(detail)
	default:
		return apperr.Unavailable("whatsapp channel rejected the message").WithDetails(detail)
	}
}

func messageBody(msgType domain.MessageType, checkoutURL string) string {
	switch msgType {
	case domain.MessageCheckoutLink:
		return "Sua música personalizada está quase pronta! Finalize o pedido aqui: " + checkoutURL
	case domain.MessageFollowUp1:
		return "Sua música ainda está reservada. Garanta a sua: " + checkoutURL
	case domain.MessageFollowUp2:
		return "Última chamada: sua música personalizada espera por você. " + checkoutURL
	default:
		return "Hoje é o último dia para finalizar sua música personalizada: " + checkoutURL
	}
}
