package repository

import (
	"context"
	"encoding/json"
	"time"

	"serenata_backend/internal/funnel/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AppendMessageParams carries one append-only dispatch record.
type AppendMessageParams struct {
	FunnelID     uuid.UUID
	Type         domain.MessageType
	Status       domain.MessageStatus
	SentAt       *time.Time
	ErrorMessage *string
	ResponseData json.RawMessage
}

const messageColumns = `id, funnel_id, message_type, status, sent_at, created_at, error_message, response_data`

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	var msgType, status string
	err := row.Scan(&m.ID, &m.FunnelID, &msgType, &status, &m.SentAt, &m.CreatedAt, &m.ErrorMessage, &m.ResponseData)
	if err != nil {
		return domain.Message{}, err
	}
	m.Type = domain.MessageType(msgType)
	m.Status = domain.MessageStatus(status)
	return m, nil
}

// ListMessages returns the full dispatch history for a funnel entity, oldest
// first.
func (r *Repository) ListMessages(ctx context.Context, funnelID uuid.UUID) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM funnel_messages WHERE funnel_id = $1 ORDER BY created_at ASC`,
		funnelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return messages, nil
}

// AppendMessage inserts one dispatch record and returns it.
func (r *Repository) AppendMessage(ctx context.Context, p AppendMessageParams) (domain.Message, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO funnel_messages (id, funnel_id, message_type, status, sent_at, error_message, response_data)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		 RETURNING `+messageColumns,
		p.FunnelID, string(p.Type), string(p.Status), p.SentAt, p.ErrorMessage, p.ResponseData)
	return scanMessage(row)
}

// CancelPendingMessages marks every pending record for the entity cancelled.
// Used when an entity exits the funnel; pause never calls this.
func (r *Repository) CancelPendingMessages(ctx context.Context, funnelID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE funnel_messages
		 SET status = 'cancelled'
		 WHERE funnel_id = $1 AND status = 'pending'`,
		funnelID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
