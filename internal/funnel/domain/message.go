package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies which scripted campaign message a record belongs to.
type MessageType string

const (
	MessageCheckoutLink MessageType = "checkout_link"
	MessageFollowUp1    MessageType = "follow_up_1"
	MessageFollowUp2    MessageType = "follow_up_2"
	MessageFollowUp3    MessageType = "follow_up_3"
)

// MaxStep is the last scripted campaign step. Sending it exhausts the campaign.
const MaxStep = 4

// MessageTypeForStep maps a campaign step (1..MaxStep) to its message type.
func MessageTypeForStep(step int) (MessageType, error) {
	switch step {
	case 1:
		return MessageCheckoutLink, nil
	case 2:
		return MessageFollowUp1, nil
	case 3:
		return MessageFollowUp2, nil
	case 4:
		return MessageFollowUp3, nil
	default:
		return "", fmt.Errorf("step %d out of range 1..%d", step, MaxStep)
	}
}

// MessageStatus is the dispatch lifecycle of a single message record.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusCancelled MessageStatus = "cancelled"
)

// Message is one append-only dispatch record for a funnel entity.
type Message struct {
	ID           uuid.UUID
	FunnelID     uuid.UUID
	Type         MessageType
	Status       MessageStatus
	SentAt       *time.Time
	CreatedAt    time.Time
	ErrorMessage *string
	ResponseData json.RawMessage
}

// HasSentCheckoutLink reports whether history already contains a sent
// checkout_link record (the first-touch idempotency guard).
func HasSentCheckoutLink(history []Message) bool {
	return HasSentStep(history, 1)
}

// HasSentStep reports whether the message for the given campaign step has
// already been sent.
func HasSentStep(history []Message, step int) bool {
	msgType, err := MessageTypeForStep(step)
	if err != nil {
		return false
	}
	for _, m := range history {
		if m.Type == msgType && m.Status == MessageStatusSent {
			return true
		}
	}
	return false
}
