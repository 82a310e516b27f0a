package repository

import (
	"context"
	"time"

	"serenata_backend/internal/funnel/domain"

	"github.com/google/uuid"
)

// Store is the funnel persistence contract consumed by the service layer and
// the reconciliation loop. *Repository is the pgx implementation; tests use
// in-memory fakes.
type Store interface {
	ListByBucket(ctx context.Context, bucket domain.Bucket) ([]domain.Entity, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error)
	Move(ctx context.Context, id uuid.UUID, to domain.Bucket, fields domain.MoveFields) (uuid.UUID, error)
	TogglePause(ctx context.Context, id uuid.UUID) (bool, error)
	CreateForOrder(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDispatch(ctx context.Context, id uuid.UUID, nextStep int, nextDispatchAt *time.Time) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Entity, error)

	ListMessages(ctx context.Context, funnelID uuid.UUID) ([]domain.Message, error)
	AppendMessage(ctx context.Context, p AppendMessageParams) (domain.Message, error)
	CancelPendingMessages(ctx context.Context, funnelID uuid.UUID) (int64, error)
}

// Compile-time check that Repository implements Store.
var _ Store = (*Repository)(nil)
