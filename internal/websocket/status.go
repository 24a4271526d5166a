package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/pubsub"
)

// MessageStore is the external message-store collaborator. The mark
// operations are conditional: they report false when the transition lost
// a race or would move the status backward, and the caller then stays
// silent.
type MessageStore interface {
	Status(ctx context.Context, messageID uuid.UUID) (domain.MessageStatus, error)
	MarkDelivered(ctx context.Context, messageID uuid.UUID, at time.Time) (bool, error)
	MarkSeen(ctx context.Context, messageID, observerID uuid.UUID, at time.Time) (bool, error)
}

// StatusCoordinator advances messages through sent → delivered → seen.
// The transition is durably recorded before anyone hears about it; a
// failed write is logged and not announced, leaving other members on the
// last-known-good status until a later transition succeeds.
type StatusCoordinator struct {
	store  MessageStore
	ps     pubsub.PubSub
	logger *slog.Logger
}

// NewStatusCoordinator creates a status coordinator
func NewStatusCoordinator(store MessageStore, ps pubsub.PubSub, logger *slog.Logger) *StatusCoordinator {
	return &StatusCoordinator{
		store:  store,
		ps:     ps,
		logger: logger.With("component", "status"),
	}
}

// MarkDelivered records that observer's device received the message.
func (sc *StatusCoordinator) MarkDelivered(ctx context.Context, messageID, roomID, observer, origin uuid.UUID) {
	sc.advance(ctx, domain.StatusDelivered, messageID, roomID, observer, origin)
}

// MarkSeen records that observer viewed the message.
func (sc *StatusCoordinator) MarkSeen(ctx context.Context, messageID, roomID, observer, origin uuid.UUID) {
	sc.advance(ctx, domain.StatusSeen, messageID, roomID, observer, origin)
}

func (sc *StatusCoordinator) advance(ctx context.Context, next domain.MessageStatus, messageID, roomID, observer, origin uuid.UUID) {
	current, err := sc.store.Status(ctx, messageID)
	if err != nil {
		sc.logger.Error("failed to read message status", "error", err, "message_id", messageID)
		return
	}

	// Backward or same-status transitions are a silent no-op
	if !current.Before(next) {
		return
	}

	at := time.Now().UTC()
	var advanced bool
	switch next {
	case domain.StatusDelivered:
		advanced, err = sc.store.MarkDelivered(ctx, messageID, at)
	case domain.StatusSeen:
		advanced, err = sc.store.MarkSeen(ctx, messageID, observer, at)
	default:
		return
	}
	if err != nil {
		sc.logger.Error("status transition failed, not broadcasting",
			"error", err, "message_id", messageID, "status", next)
		return
	}
	if !advanced {
		// A concurrent marker won the race; the winner broadcasts
		return
	}

	payload := StatusUpdatePayload{
		MessageID:      messageID,
		ConversationID: roomID,
		Status:         next,
		ObserverUserID: observer,
		At:             at,
	}
	if err := publishEvent(ctx, sc.ps, pubsub.Topics.Room(roomID.String()), EventTypeStatusUpdate, origin, payload); err != nil {
		sc.logger.Error("failed to publish status update", "error", err, "message_id", messageID)
	}
}
