package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/domain"
)

// Event types for client -> hub
const (
	EventTypeJoin        = "join"
	EventTypeLeave       = "leave"
	EventTypeTypingStart = "typing:start"
	EventTypeTypingStop  = "typing:stop"
	EventTypeDelivered   = "message:delivered"
	EventTypeSeen        = "message:seen"
	EventTypeCallSignal  = "call:signal"
	EventTypeCallStart   = "call:start"
)

// Event types for hub -> client
const (
	EventTypeMessageNew     = "message:new"
	EventTypeStatusUpdate   = "message:status_update"
	EventTypeUserOnline     = "user:online"
	EventTypeUserOffline    = "user:offline"
	EventTypeFriendRequest  = "friend:request"
	EventTypeFriendAccepted = "friend:accepted"
	EventTypeCallIncoming   = "call:incoming"
)

// Signal kinds carried by call:signal envelopes. The hub does not act on
// the kind; it is metadata for the two endpoints negotiating the call.
const (
	SignalKindOffer  = "offer"
	SignalKindAnswer = "answer"
)

// Message is the base WebSocket message envelope
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// NewMessage creates a message with the current timestamp
func NewMessage(eventType string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      eventType,
		Payload:   payloadBytes,
		Timestamp: time.Now(),
	}, nil
}

// ============================================================================
// Client -> Hub Payloads
// ============================================================================

// RoomPayload carries the room identifier for join and leave
type RoomPayload struct {
	ConversationID string `json:"conversation_id"`
}

// TypingPayload for typing:start / typing:stop from the client
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
}

// StatusMarkPayload for message:delivered / message:seen
type StatusMarkPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// CallSignalPayload is the opaque call-setup envelope. Signal is passed
// through byte-for-byte; the hub never inspects it.
type CallSignalPayload struct {
	ConversationID string          `json:"conversation_id"`
	Signal         json.RawMessage `json:"signal"`
	Kind           string          `json:"kind"`
}

// CallStartPayload announces an outgoing call to a room
type CallStartPayload struct {
	ConversationID string `json:"conversation_id"`
}

// ============================================================================
// Hub -> Client Payloads
// ============================================================================

// TypingBroadcastPayload relays who is typing in which room
type TypingBroadcastPayload struct {
	ConversationID uuid.UUID          `json:"conversation_id"`
	User           domain.UserSummary `json:"user"`
}

// StatusUpdatePayload announces a successful delivery-status transition
type StatusUpdatePayload struct {
	MessageID      uuid.UUID            `json:"message_id"`
	ConversationID uuid.UUID            `json:"conversation_id"`
	Status         domain.MessageStatus `json:"status"`
	ObserverUserID uuid.UUID            `json:"observer_user_id"`
	At             time.Time            `json:"at"`
}

// PresencePayload for user:online / user:offline. LastSeen is set only
// on the offline transition.
type PresencePayload struct {
	UserID   uuid.UUID  `json:"user_id"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// FriendRequestPayload notifies a user of an incoming friend request
type FriendRequestPayload struct {
	ToUserID  uuid.UUID          `json:"to_user_id"`
	From      domain.UserSummary `json:"from"`
	RequestID uuid.UUID          `json:"request_id"`
}

// FriendAcceptedPayload notifies the original requester that the request
// was accepted and which conversation was created for the pair
type FriendAcceptedPayload struct {
	UserID         uuid.UUID          `json:"user_id"`
	NewFriend      domain.UserSummary `json:"new_friend"`
	ConversationID uuid.UUID          `json:"conversation_id"`
}

// CallSignalBroadcastPayload is the relayed form of a signal envelope,
// stamped with the sender's identity
type CallSignalBroadcastPayload struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	From           uuid.UUID       `json:"from"`
	Signal         json.RawMessage `json:"signal"`
	Kind           string          `json:"kind"`
}

// CallIncomingPayload announces an incoming call to the rest of a room
type CallIncomingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	CallerID       uuid.UUID `json:"caller_id"`
}
