// Package transport defines the HTTP request and response shapes for the
// funnel board.
package transport

import (
	"time"

	"serenata_backend/internal/funnel/domain"
	"serenata_backend/internal/funnel/service"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// EnrollRequest enrolls a pending order into the funnel.
type EnrollRequest struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

// MoveRequest moves an entity to another lifecycle bucket on operator
// authority.
type MoveRequest struct {
	To         string `json:"to" validate:"required,oneof=pending completed exited"`
	ExitReason string `json:"exitReason" validate:"omitempty,max=500"`
}

// SendStepRequest dispatches a specific campaign step.
type SendStepRequest struct {
	Step int `json:"step" validate:"required,min=1,max=4"`
}

// BulkSendRequest dispatches the first campaign message to a set of entities.
type BulkSendRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// EntityResponse is the board card view of a funnel entity.
type EntityResponse struct {
	ID               uuid.UUID  `json:"id"`
	OrderID          uuid.UUID  `json:"orderId"`
	CustomerWhatsApp string     `json:"customerWhatsapp"`
	CustomerEmail    string     `json:"customerEmail,omitempty"`
	Bucket           string     `json:"bucket"`
	CurrentStep      int        `json:"currentStep"`
	IsPaused         bool       `json:"isPaused"`
	NextDispatchAt   *time.Time `json:"nextDispatchAt,omitempty"`
	ExitReason       *string    `json:"exitReason,omitempty"`
	QuizID           *uuid.UUID `json:"quizId,omitempty"`
	OrderStatus      string     `json:"orderStatus"`
	OrderAmount      int64      `json:"orderAmount"`
	OrderCreatedAt   time.Time  `json:"orderCreatedAt"`
	MessagesCount    int        `json:"messagesCount"`
	LastMessageAt    *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// EntityFromDomain converts a domain entity to its response shape.
func EntityFromDomain(e domain.Entity) EntityResponse {
	return EntityResponse{
		ID:               e.ID,
		OrderID:          e.OrderID,
		CustomerWhatsApp: e.CustomerWhatsApp,
		CustomerEmail:    e.CustomerEmail,
		Bucket:           string(e.Bucket),
		CurrentStep:      e.CurrentStep,
		IsPaused:         e.IsPaused,
		NextDispatchAt:   e.NextDispatchAt,
		ExitReason:       e.ExitReason,
		QuizID:           e.QuizID,
		OrderStatus:      e.OrderStatus,
		OrderAmount:      e.OrderAmount,
		OrderCreatedAt:   e.OrderCreatedAt,
		MessagesCount:    e.MessagesCount,
		LastMessageAt:    e.LastMessageAt,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

// EntitiesFromDomain converts a slice of domain entities.
func EntitiesFromDomain(entities []domain.Entity) []EntityResponse {
	out := make([]EntityResponse, 0, len(entities))
	for _, e := range entities {
		out = append(out, EntityFromDomain(e))
	}
	return out
}

// BoardResponse is the full three-column board snapshot.
type BoardResponse struct {
	Pending   []EntityResponse `json:"pending"`
	Completed []EntityResponse `json:"completed"`
	Exited    []EntityResponse `json:"exited"`
}

// MessageResponse is one dispatch history record.
type MessageResponse struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
}

// MessagesFromDomain converts a slice of domain messages.
func MessagesFromDomain(messages []domain.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageResponse{
			ID:           m.ID,
			Type:         string(m.Type),
			Status:       string(m.Status),
			SentAt:       m.SentAt,
			CreatedAt:    m.CreatedAt,
			ErrorMessage: m.ErrorMessage,
		})
	}
	return out
}

// BulkSendResponse reports the outcome of a bulk dispatch run.
type BulkSendResponse struct {
	Total     int               `json:"total"`
	Processed int               `json:"processed"`
	Failed    int               `json:"failed"`
	Filtered  int               `json:"filtered"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// BulkFromResult converts a service bulk result.
func BulkFromResult(r service.BulkResult) BulkSendResponse {
	resp := BulkSendResponse{
		Total:     r.Total,
		Processed: r.Processed,
		Failed:    r.Failed,
		Filtered:  r.Filtered,
	}
	if len(r.Errors) > 0 {
		resp.Errors = make(map[string]string, len(r.Errors))
		for id, msg := range r.Errors {
			resp.Errors[id.String()] = msg
		}
	}
	return resp
}
