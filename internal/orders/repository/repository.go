// Package repository provides read access to the orders collaborator. The
// funnel engine never mutates orders; the payment webhook that marks them
// paid lives outside this service.
package repository

import (
	"context"
	"errors"
	"time"

	"serenata_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// URLSourceGateway marks checkout URLs generated by a payment gateway;
// anything else is an internal placeholder that must be regenerated before use.
const URLSourceGateway = "gateway"

// Order is the authoritative order view used for validation and reconciliation.
type Order struct {
	ID                uuid.UUID
	Status            string
	CustomerEmail     string
	CustomerWhatsApp  string
	QuizID            *uuid.UUID
	AmountCents       int64
	CheckoutURL       *string
	CheckoutURLSource string
	Locale            string
	CreatedAt         time.Time
	PendingAt         *time.Time
}

// Repository reads orders through pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new orders repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, status, customer_email, customer_whatsapp, quiz_id,
	amount_cents, checkout_url, checkout_url_source, locale, created_at, pending_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Status, &o.CustomerEmail, &o.CustomerWhatsApp, &o.QuizID,
		&o.AmountCents, &o.CheckoutURL, &o.CheckoutURLSource, &o.Locale, &o.CreatedAt, &o.PendingAt)
	return o, err
}

// GetStatus returns the authoritative order state.
func (r *Repository) GetStatus(ctx context.Context, orderID uuid.UUID) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFound("order not found")
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// GetStatusBatch returns the authoritative state for a set of orders keyed by
// id. Missing orders are simply absent from the result, never an error.
func (r *Repository) GetStatusBatch(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]Order, error) {
	result := make(map[uuid.UUID]Order, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ANY($1)`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result[o.ID] = o
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return result, nil
}
