package websocket

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/pubsub"
)

// Broadcaster is the interface the hub exposes to the surrounding CRUD
// layer. The message service calls BroadcastMessageNew after it durably
// persists a message; the friend endpoints raise the friend events.
// Delivery is best-effort: a target with no live connections hears
// nothing and catches up on its next full fetch.
type Broadcaster interface {
	// BroadcastMessageNew fans a freshly persisted message out to every
	// member of its conversation, the sender's connections included.
	BroadcastMessageNew(ctx context.Context, msg *domain.Message) error

	// NotifyFriendRequest tells a user someone wants to be their friend.
	NotifyFriendRequest(ctx context.Context, toUserID uuid.UUID, from domain.UserSummary, requestID uuid.UUID) error

	// NotifyFriendAccepted tells the requester their request was accepted
	// and which conversation now connects the pair.
	NotifyFriendAccepted(ctx context.Context, userID uuid.UUID, newFriend domain.UserSummary, conversationID uuid.UUID) error
}

// PubSubBroadcaster implements Broadcaster on top of the PubSub system,
// so events raised by any instance reach connections on every instance.
type PubSubBroadcaster struct {
	ps pubsub.PubSub
}

// NewPubSubBroadcaster creates a broadcaster backed by the given PubSub
func NewPubSubBroadcaster(ps pubsub.PubSub) *PubSubBroadcaster {
	return &PubSubBroadcaster{ps: ps}
}

func (b *PubSubBroadcaster) BroadcastMessageNew(ctx context.Context, msg *domain.Message) error {
	topic := pubsub.Topics.Room(msg.ConversationID.String())
	return publishEvent(ctx, b.ps, topic, EventTypeMessageNew, uuid.Nil, msg)
}

func (b *PubSubBroadcaster) NotifyFriendRequest(ctx context.Context, toUserID uuid.UUID, from domain.UserSummary, requestID uuid.UUID) error {
	payload := FriendRequestPayload{
		ToUserID:  toUserID,
		From:      from,
		RequestID: requestID,
	}
	return publishEvent(ctx, b.ps, pubsub.Topics.User(toUserID.String()), EventTypeFriendRequest, uuid.Nil, payload)
}

func (b *PubSubBroadcaster) NotifyFriendAccepted(ctx context.Context, userID uuid.UUID, newFriend domain.UserSummary, conversationID uuid.UUID) error {
	payload := FriendAcceptedPayload{
		UserID:         userID,
		NewFriend:      newFriend,
		ConversationID: conversationID,
	}
	return publishEvent(ctx, b.ps, pubsub.Topics.User(userID.String()), EventTypeFriendAccepted, uuid.Nil, payload)
}

// publishEvent marshals a payload and publishes it on the given topic.
// Origin carries the originating connection id for room-scoped relays;
// externally triggered events pass uuid.Nil and reach every member.
func publishEvent(ctx context.Context, ps pubsub.PubSub, topic, eventType string, origin uuid.UUID, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ps.Publish(ctx, topic, &pubsub.Message{
		Topic:   topic,
		Type:    eventType,
		Origin:  origin,
		Payload: data,
	})
}
