package service

import (
	"context"
	"sync"
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

type memStore struct {
	mu       sync.Mutex
	entities map[uuid.UUID]domain.Entity
	messages map[uuid.UUID][]domain.Message
	// moveErr is returned by the next Move call, then cleared. Lets tests
	// simulate losing the cross-partition race.
	moveErr error
}

func newMemStore() *memStore {
	return &memStore{
		entities: make(map[uuid.UUID]domain.Entity),
		messages: make(map[uuid.UUID][]domain.Message),
	}
}

func (s *memStore) put(e domain.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
}

func (s *memStore) ListByBucket(_ context.Context, bucket domain.Bucket) ([]domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Entity
	for _, e := range s.entities {
		if e.Bucket == bucket {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return domain.Entity{}, apperr.NotFound("funnel entity not found")
	}
	return e, nil
}

func (s *memStore) Move(_ context.Context, id uuid.UUID, to domain.Bucket, fields domain.MoveFields) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.moveErr != nil {
		err := s.moveErr
		s.moveErr = nil
		return uuid.Nil, err
	}
	e, ok := s.entities[id]
	if !ok {
		return uuid.Nil, apperr.NotFound("funnel entity not found")
	}
	if e.Bucket == to {
		return uuid.Nil, repository.ErrAlreadyMoved
	}
	e.Bucket = to
	if fields.CurrentStep != nil {
		e.CurrentStep = *fields.CurrentStep
	}
	if fields.ExitReason != nil {
		reason := *fields.ExitReason
		e.ExitReason = &reason
	}
	if fields.ClearExit {
		e.ExitReason = nil
	}
	if fields.NextDispatchAt != nil {
		at := *fields.NextDispatchAt
		e.NextDispatchAt = &at
	}
	if fields.ClearDispatch {
		e.NextDispatchAt = nil
	}
	s.entities[id] = e
	return id, nil
}

func (s *memStore) TogglePause(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return false, apperr.NotFound("funnel entity not found")
	}
	e.IsPaused = !e.IsPaused
	s.entities[id] = e
	return e.IsPaused, nil
}

func (s *memStore) CreateForOrder(_ context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.OrderID == orderID {
			return e.ID, nil
		}
	}
	e := domain.Entity{
		ID:          uuid.New(),
		OrderID:     orderID,
		Bucket:      domain.BucketPending,
		CurrentStep: 1,
		OrderStatus: domain.OrderStatusPending,
		CreatedAt:   time.Now(),
	}
	s.entities[e.ID] = e
	return e.ID, nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[id]; !ok {
		return apperr.NotFound("funnel entity not found")
	}
	delete(s.entities, id)
	delete(s.messages, id)
	return nil
}

func (s *memStore) RecordDispatch(_ context.Context, id uuid.UUID, nextStep int, nextDispatchAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return apperr.NotFound("funnel entity not found")
	}
	if nextStep > e.CurrentStep {
		e.CurrentStep = nextStep
	}
	e.NextDispatchAt = nextDispatchAt
	s.entities[id] = e
	return nil
}

func (s *memStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Entity
	for _, e := range s.entities {
		if e.Bucket != domain.BucketPending || e.IsPaused || e.NextDispatchAt == nil {
			continue
		}
		if e.NextDispatchAt.After(now) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) ListMessages(_ context.Context, funnelID uuid.UUID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages[funnelID]...), nil
}

func (s *memStore) AppendMessage(_ context.Context, p repository.AppendMessageParams) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := domain.Message{
		ID:           uuid.New(),
		FunnelID:     p.FunnelID,
		Type:         p.Type,
		Status:       p.Status,
		SentAt:       p.SentAt,
		CreatedAt:    time.Now(),
		ErrorMessage: p.ErrorMessage,
		ResponseData: p.ResponseData,
	}
	s.messages[p.FunnelID] = append(s.messages[p.FunnelID], m)
	if e, ok := s.entities[p.FunnelID]; ok {
		e.MessagesCount++
		if p.SentAt != nil {
			e.LastMessageAt = p.SentAt
		}
		s.entities[p.FunnelID] = e
	}
	return m, nil
}

func (s *memStore) CancelPendingMessages(_ context.Context, funnelID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	msgs := s.messages[funnelID]
	for i, m := range msgs {
		if m.Status == domain.MessageStatusPending {
			msgs[i].Status = domain.MessageStatusCancelled
			n++
		}
	}
	return n, nil
}

var _ repository.Store = (*memStore)(nil)

type fakeOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]ordersrepo.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[uuid.UUID]ordersrepo.Order)}
}

func (f *fakeOrders) set(o ordersrepo.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeOrders) GetStatus(_ context.Context, orderID uuid.UUID) (ordersrepo.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return ordersrepo.Order{}, apperr.NotFound("order not found")
	}
	return o, nil
}

func (f *fakeOrders) GetStatusBatch(_ context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]ordersrepo.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]ordersrepo.Order, len(orderIDs))
	for _, id := range orderIDs {
		if o, ok := f.orders[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	result whatsapp.SendResult
}

func newFakeSender() *fakeSender {
	return &fakeSender{result: whatsapp.SendResult{Success: true}}
}

func (f *fakeSender) Send(_ context.Context, phone string, _ string) whatsapp.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, phone)
	return f.result
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixedResolver struct {
	url string
}

func (r fixedResolver) Resolve(ordersrepo.Order) string { return r.url }

type scheduledTask struct {
	payload scheduler.FunnelDispatchPayload
	runAt   time.Time
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

func (f *fakeScheduler) ScheduleDispatch(_ context.Context, payload scheduler.FunnelDispatchPayload, runAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, scheduledTask{payload: payload, runAt: runAt})
	return nil
}

func (f *fakeScheduler) scheduled() []scheduledTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduledTask(nil), f.tasks...)
}

type testEnv struct {
	store   *memStore
	orders  *fakeOrders
	sender  *fakeSender
	sched   *fakeScheduler
	cache   *board.Cache
	bus     *events.InMemoryBus
	svc     *Service
	disp    *Dispatcher
	engine  *Engine
	baseNow time.Time
}

func newTestEnv() *testEnv {
	log := logger.New("development")
	store := newMemStore()
	orders := newFakeOrders()
	sender := newFakeSender()
	sched := &fakeScheduler{}
	cache := board.NewCache()
	bus := events.NewInMemoryBus(log)

	stepDelays := []time.Duration{30 * time.Minute, 24 * time.Hour, 48 * time.Hour}
	disp := NewDispatcher(store, orders, fixedResolver{url: "https://pay.example/abc"}, sender, cache, bus, sched, log, stepDelays, 3*time.Second, 6*time.Second)
	disp.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	engine := NewEngine(store, orders, cache, bus, log)
	svc := New(store, cache, disp, engine, log)

	return &testEnv{
		store:   store,
		orders:  orders,
		sender:  sender,
		sched:   sched,
		cache:   cache,
		bus:     bus,
		svc:     svc,
		disp:    disp,
		engine:  engine,
		baseNow: time.Now(),
	}
}

// seedPending creates a sendable pending entity with its order, older than
// the minimum dwell.
func (env *testEnv) seedPending() domain.Entity {
	quizID := uuid.New()
	e := domain.Entity{
		ID:               uuid.New(),
		OrderID:          uuid.New(),
		CustomerWhatsApp: "+5511987654321",
		Bucket:           domain.BucketPending,
		CurrentStep:      1,
		QuizID:           &quizID,
		CreatedAt:        env.baseNow.Add(-time.Hour),
		OrderStatus:      domain.OrderStatusPending,
		OrderCreatedAt:   env.baseNow.Add(-time.Hour),
	}
	env.store.put(e)
	env.orders.set(ordersrepo.Order{ID: e.OrderID, Status: domain.OrderStatusPending})
	env.cache.ReplaceBucket(domain.BucketPending, append(env.cache.Snapshot(domain.BucketPending), e))
	return e
}
