// Package repository persists funnel entities and their message log. The
// funnel_entities table is LIST-partitioned by lifecycle_bucket, so bucket
// membership is enforced by storage: a row exists in exactly one partition,
// and moving between buckets is a single UPDATE of the partition key.
package repository

import (
	"context"
	"errors"
	"time"

	"serenata_backend/internal/funnel/domain"
	"serenata_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAlreadyMoved reports that the entity is already in the target bucket.
// Callers treat it as a benign race, not a failure.
var ErrAlreadyMoved = errors.New("funnel entity already moved")

// Repository provides funnel store and message log access through pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new funnel repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entityColumns = `f.id, f.order_id, f.customer_whatsapp, f.customer_email,
	f.lifecycle_bucket, f.current_step, f.is_paused, f.next_dispatch_at,
	f.exit_reason, f.quiz_id, o.quiz_id, f.created_at, f.updated_at,
	o.status, COALESCE(o.amount_cents, 0), COALESCE(o.created_at, f.created_at),
	o.pending_at, COALESCE(m.total, 0), m.last_at`

const entityFrom = ` FROM funnel_entities f
	LEFT JOIN orders o ON o.id = f.order_id
	LEFT JOIN LATERAL (
		SELECT COUNT(*) AS total, MAX(COALESCE(sent_at, created_at)) AS last_at
		FROM funnel_messages WHERE funnel_id = f.id
	) m ON true`

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var e domain.Entity
	var bucket string
	var orderStatus *string
	var orderQuizID *uuid.UUID
	var pendingAt *time.Time
	err := row.Scan(&e.ID, &e.OrderID, &e.CustomerWhatsApp, &e.CustomerEmail,
		&bucket, &e.CurrentStep, &e.IsPaused, &e.NextDispatchAt,
		&e.ExitReason, &e.QuizID, &orderQuizID, &e.CreatedAt, &e.UpdatedAt,
		&orderStatus, &e.OrderAmount, &e.OrderCreatedAt,
		&pendingAt, &e.MessagesCount, &e.LastMessageAt)
	if err != nil {
		return domain.Entity{}, err
	}
	e.Bucket = domain.Bucket(bucket)
	if orderStatus != nil {
		e.OrderStatus = *orderStatus
	}
	// The quiz may arrive on the order after enrollment snapshotted nil.
	if e.QuizID == nil {
		e.QuizID = orderQuizID
	}
	if pendingAt != nil {
		e.OrderPendingAt = *pendingAt
	} else {
		e.OrderPendingAt = e.OrderCreatedAt
	}
	return e, nil
}

// ListByBucket reads one partition, joined with the order snapshot and
// message aggregates so the board renders without per-entity queries.
func (r *Repository) ListByBucket(ctx context.Context, bucket domain.Bucket) ([]domain.Entity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entityColumns+entityFrom+`
		 WHERE f.lifecycle_bucket = $1
		 ORDER BY f.created_at DESC`,
		string(bucket))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := make([]domain.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return entities, nil
}

// GetByID loads a single entity with its order snapshot.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entityColumns+entityFrom+` WHERE f.id = $1`, id)
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Entity{}, apperr.NotFound("funnel entity not found")
	}
	if err != nil {
		return domain.Entity{}, err
	}
	return e, nil
}

// Move atomically changes the entity's partition and applies the transition's
// field updates in the same statement. It is idempotent under retry: when the
// entity already sits in the target bucket it returns ErrAlreadyMoved, and
// when it does not exist at all it returns a not-found error.
func (r *Repository) Move(ctx context.Context, id uuid.UUID, to domain.Bucket, fields domain.MoveFields) (uuid.UUID, error) {
	var movedID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`UPDATE funnel_entities
		 SET lifecycle_bucket = $2,
		     current_step = COALESCE($3, current_step),
		     exit_reason = CASE WHEN $4::text IS NOT NULL THEN $4
		                        WHEN $5 THEN NULL
		                        ELSE exit_reason END,
		     next_dispatch_at = CASE WHEN $6::timestamptz IS NOT NULL THEN $6
		                             WHEN $7 THEN NULL
		                             ELSE next_dispatch_at END,
		     updated_at = now()
		 WHERE id = $1 AND lifecycle_bucket <> $2
		 RETURNING id`,
		id, string(to), fields.CurrentStep, fields.ExitReason, fields.ClearExit,
		fields.NextDispatchAt, fields.ClearDispatch,
	).Scan(&movedID)
	if errors.Is(err, pgx.ErrNoRows) {
		var current string
		lookupErr := r.pool.QueryRow(ctx,
			`SELECT lifecycle_bucket FROM funnel_entities WHERE id = $1`, id).Scan(&current)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return uuid.Nil, apperr.NotFound("funnel entity not found")
		}
		if lookupErr != nil {
			return uuid.Nil, lookupErr
		}
		return id, ErrAlreadyMoved
	}
	if err != nil {
		return uuid.Nil, err
	}
	return movedID, nil
}

// TogglePause atomically flips is_paused and returns the new value. Pause
// never changes bucket membership or cancels pending message records.
func (r *Repository) TogglePause(ctx context.Context, id uuid.UUID) (bool, error) {
	var paused bool
	err := r.pool.QueryRow(ctx,
		`UPDATE funnel_entities
		 SET is_paused = NOT is_paused, updated_at = now()
		 WHERE id = $1
		 RETURNING is_paused`,
		id).Scan(&paused)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperr.NotFound("funnel entity not found")
	}
	if err != nil {
		return false, err
	}
	return paused, nil
}

// CreateForOrder is the external trigger path: a funnel entity is created
// when an order enters pending with a usable WhatsApp number. Creating twice
// for the same order returns the existing id.
func (r *Repository) CreateForOrder(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	var existing uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM funnel_entities WHERE order_id = $1`, orderID).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO funnel_entities (id, order_id, customer_whatsapp, customer_email, lifecycle_bucket, current_step, quiz_id)
		 SELECT gen_random_uuid(), o.id, o.customer_whatsapp, o.customer_email, 'pending', 1, o.quiz_id
		 FROM orders o
		 WHERE o.id = $1 AND o.status = 'pending' AND length(regexp_replace(o.customer_whatsapp, '\D', '', 'g')) >= 10
		 ON CONFLICT (order_id, lifecycle_bucket) DO NOTHING
		 RETURNING id`,
		orderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the order is unusable, or a concurrent enrollment hit the
		// conflict guard. Re-check before rejecting.
		lookupErr := r.pool.QueryRow(ctx,
			`SELECT id FROM funnel_entities WHERE order_id = $1`, orderID).Scan(&existing)
		if lookupErr == nil {
			return existing, nil
		}
		if !errors.Is(lookupErr, pgx.ErrNoRows) {
			return uuid.Nil, lookupErr
		}
		return uuid.Nil, apperr.Validation("order is not pending or has no usable whatsapp")
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Delete removes the entity and cascades to its message records in one
// transaction.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM funnel_messages WHERE funnel_id = $1`, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM funnel_entities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("funnel entity not found")
	}

	return tx.Commit(ctx)
}

// RecordDispatch advances the campaign after a successful send. current_step
// only ever increases here; manual reactivation is the single path that
// resets it.
func (r *Repository) RecordDispatch(ctx context.Context, id uuid.UUID, nextStep int, nextDispatchAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE funnel_entities
		 SET current_step = GREATEST(current_step, $2),
		     next_dispatch_at = $3,
		     updated_at = now()
		 WHERE id = $1`,
		id, nextStep, nextDispatchAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("funnel entity not found")
	}
	return nil
}

// ListDue returns pending-bucket entities whose next automated dispatch is
// due. Paused entities and entities whose order already left pending are
// excluded at the query level.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Entity, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+entityColumns+entityFrom+`
		 WHERE f.lifecycle_bucket = 'pending'
		   AND f.is_paused = false
		   AND f.next_dispatch_at IS NOT NULL
		   AND f.next_dispatch_at <= $1
		   AND o.status = 'pending'
		 ORDER BY f.next_dispatch_at ASC
		 LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := make([]domain.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return entities, nil
}
