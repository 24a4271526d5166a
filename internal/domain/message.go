package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus tracks delivery progress of a persisted message.
// Statuses are strictly ordered: sent < delivered < seen.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// rank maps a status onto the delivery ordering. Unknown statuses rank
// below sent so they never win a comparison.
func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known delivery statuses.
func (s MessageStatus) Valid() bool {
	return s.rank() > 0
}

// Before reports whether s comes strictly earlier than other in the
// delivery ordering. A transition is only allowed when current.Before(next).
func (s MessageStatus) Before(other MessageStatus) bool {
	return s.rank() < other.rank()
}

// Message is the hub's view of a persisted chat message. The record is
// created by the message service; the hub fans it out on message:new and
// advances only the status fields afterwards.
type Message struct {
	ID             uuid.UUID     `json:"id"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	SenderID       uuid.UUID     `json:"sender_id"`
	Sender         UserSummary   `json:"sender"`
	Content        string        `json:"content"`
	ContentType    string        `json:"content_type,omitempty"`
	Status         MessageStatus `json:"status"`
	ReadBy         []uuid.UUID   `json:"read_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	DeliveredAt    *time.Time    `json:"delivered_at,omitempty"`
	SeenAt         *time.Time    `json:"seen_at,omitempty"`
}
