package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/pubsub"
)

// Hub is the realtime event hub: it owns the connection registry and
// room index, routes inbound connection events to their handlers, and
// fans pub/sub events out to the right subscriber sets. The subscriber
// set for a fan-out is always computed at publish time, never cached.
type Hub struct {
	registry *Registry
	rooms    *RoomIndex
	presence *PresenceTracker
	status   *StatusCoordinator

	ps pubsub.PubSub

	// Active topic subscriptions (rooms, users, presence),
	// reference-counted per create/prune transition
	subs   map[string]*topicSub
	subsMu sync.Mutex

	// Per-event-type handlers; built once, read-only afterwards
	handlers map[string]eventHandler

	// Channels for registering/unregistering clients; done unblocks
	// both once the run loop has exited
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	eventRateLimit int
	logger         *slog.Logger
}

type eventHandler func(ctx context.Context, c *Client, payload json.RawMessage)

// topicSub pairs a live subscription with the number of create/prune
// transitions currently holding it open.
type topicSub struct {
	sub  pubsub.Subscription
	refs int
}

// NewHub creates a hub wired to its external store collaborators
func NewHub(messages MessageStore, users UserStore, ps pubsub.PubSub, eventRateLimit int, logger *slog.Logger) *Hub {
	h := &Hub{
		registry:       NewRegistry(),
		rooms:          NewRoomIndex(),
		ps:             ps,
		subs:           make(map[string]*topicSub),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		eventRateLimit: eventRateLimit,
		logger:         logger.With("component", "hub"),
	}
	h.presence = NewPresenceTracker(h.registry, users, ps, logger)
	h.status = NewStatusCoordinator(messages, ps, logger)

	h.handlers = map[string]eventHandler{
		EventTypeJoin:        h.handleJoin,
		EventTypeLeave:       h.handleLeave,
		EventTypeTypingStart: h.handleTyping(EventTypeTypingStart),
		EventTypeTypingStop:  h.handleTyping(EventTypeTypingStop),
		EventTypeDelivered:   h.handleDelivered,
		EventTypeSeen:        h.handleSeen,
		EventTypeCallSignal:  h.handleCallSignal,
		EventTypeCallStart:   h.handleCallStart,
	}
	return h
}

// Presence exposes the tracker for the internal collaborator API
func (h *Hub) Presence() *PresenceTracker {
	return h.presence
}

// Run starts the hub's lifecycle loop. Connect and disconnect for a
// given connection are serialized here; event handling runs on the
// connection's own read goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if err := h.subscribeTopic(ctx, pubsub.Topics.Presence(), h.onPresenceEvent); err != nil {
		h.logger.Error("failed to subscribe to presence topic", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.handleRegister(ctx, client)
		case client := <-h.unregister:
			h.handleUnregister(ctx, client)
		}
	}
}

// Register adds a client to the hub. Once the run loop has stopped it
// becomes a no-op so connection goroutines never park on a dead hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub. After shutdown the client is
// still closed so its write pump drains and exits.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	first := h.registry.Register(c)
	h.logger.Debug("client connected", "user_id", c.UserID(), "conn_id", c.ID(), "first", first)

	if !first {
		return
	}
	if err := h.subscribeTopic(ctx, pubsub.Topics.User(c.UserID().String()), h.onUserEvent); err != nil {
		h.logger.Error("failed to subscribe to user topic", "error", err, "user_id", c.UserID())
	}
	h.presence.HandleOnline(ctx, c.UserID())
}

// handleUnregister unwinds everything a disconnect leaves behind: room
// membership first, then the registry entry, then - if this was the last
// connection - the presence transition.
func (h *Hub) handleUnregister(ctx context.Context, c *Client) {
	for _, roomID := range h.rooms.LeaveAll(c) {
		h.unsubscribeTopic(pubsub.Topics.Room(roomID.String()))
	}

	last := h.registry.Unregister(c)
	if last {
		h.unsubscribeTopic(pubsub.Topics.User(c.UserID().String()))
		h.presence.HandleOffline(ctx, c.UserID())
	}

	c.Close()
	h.logger.Debug("client disconnected", "user_id", c.UserID(), "conn_id", c.ID(), "last", last)
}

// HandleEvent dispatches one inbound event. Unknown event types and
// malformed payloads are dropped; no error ever goes back to the client.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, msg *Message) {
	handler, ok := h.handlers[msg.Type]
	if !ok {
		h.logger.Debug("dropping unknown event", "type", msg.Type, "user_id", c.UserID())
		return
	}
	handler(ctx, c, msg.Payload)
}

// ============================================================================
// Inbound event handlers
// ============================================================================

func (h *Hub) handleJoin(ctx context.Context, c *Client, payload json.RawMessage) {
	roomID, ok := h.parseRoom(c, payload)
	if !ok {
		return
	}

	// No membership check against the conversation service here: any
	// connection may join any room id, matching the upstream contract.
	if h.rooms.Join(c, roomID) {
		if err := h.subscribeTopic(ctx, pubsub.Topics.Room(roomID.String()), h.onRoomEvent); err != nil {
			h.logger.Error("failed to subscribe to room topic", "error", err, "room_id", roomID)
		}
	}
	h.logger.Debug("client joined room", "user_id", c.UserID(), "room_id", roomID)
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, payload json.RawMessage) {
	roomID, ok := h.parseRoom(c, payload)
	if !ok {
		return
	}

	if h.rooms.Leave(c, roomID) {
		h.unsubscribeTopic(pubsub.Topics.Room(roomID.String()))
	}
}

func (h *Hub) handleTyping(eventType string) eventHandler {
	return func(ctx context.Context, c *Client, payload json.RawMessage) {
		var p TypingPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		roomID, err := uuid.Parse(p.ConversationID)
		if err != nil {
			return
		}

		broadcast := TypingBroadcastPayload{
			ConversationID: roomID,
			User:           c.Summary(),
		}
		h.publishToRoom(ctx, roomID, eventType, c.ID(), broadcast)
	}
}

func (h *Hub) handleDelivered(ctx context.Context, c *Client, payload json.RawMessage) {
	messageID, roomID, ok := h.parseStatusMark(c, payload)
	if !ok {
		return
	}
	h.status.MarkDelivered(ctx, messageID, roomID, c.UserID(), c.ID())
}

func (h *Hub) handleSeen(ctx context.Context, c *Client, payload json.RawMessage) {
	messageID, roomID, ok := h.parseStatusMark(c, payload)
	if !ok {
		return
	}
	h.status.MarkSeen(ctx, messageID, roomID, c.UserID(), c.ID())
}

func (h *Hub) handleCallSignal(ctx context.Context, c *Client, payload json.RawMessage) {
	var p CallSignalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	roomID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		return
	}

	// The signal is forwarded untouched. Ordering and duplicates are the
	// endpoints' problem; the hub does not track call state.
	broadcast := CallSignalBroadcastPayload{
		ConversationID: roomID,
		From:           c.UserID(),
		Signal:         p.Signal,
		Kind:           p.Kind,
	}
	h.publishToRoom(ctx, roomID, EventTypeCallSignal, c.ID(), broadcast)
}

func (h *Hub) handleCallStart(ctx context.Context, c *Client, payload json.RawMessage) {
	var p CallStartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	roomID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		return
	}

	broadcast := CallIncomingPayload{
		ConversationID: roomID,
		CallerID:       c.UserID(),
	}
	h.publishToRoom(ctx, roomID, EventTypeCallIncoming, c.ID(), broadcast)
}

func (h *Hub) parseRoom(c *Client, payload json.RawMessage) (uuid.UUID, bool) {
	var p RoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logger.Debug("dropping malformed room payload", "user_id", c.UserID())
		return uuid.Nil, false
	}
	roomID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		h.logger.Debug("dropping invalid room id", "user_id", c.UserID())
		return uuid.Nil, false
	}
	return roomID, true
}

func (h *Hub) parseStatusMark(c *Client, payload json.RawMessage) (uuid.UUID, uuid.UUID, bool) {
	var p StatusMarkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.logger.Debug("dropping malformed status payload", "user_id", c.UserID())
		return uuid.Nil, uuid.Nil, false
	}
	messageID, err := uuid.Parse(p.MessageID)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	roomID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return messageID, roomID, true
}

func (h *Hub) publishToRoom(ctx context.Context, roomID uuid.UUID, eventType string, origin uuid.UUID, payload interface{}) {
	topic := pubsub.Topics.Room(roomID.String())
	if err := publishEvent(ctx, h.ps, topic, eventType, origin, payload); err != nil {
		h.logger.Error("failed to publish room event", "error", err, "room_id", roomID, "type", eventType)
	}
}

// ============================================================================
// Topic subscriptions and fan-out
// ============================================================================

// subscribeTopic attaches a handler to a topic. Each call balances one
// later unsubscribeTopic: subscriptions are reference-counted so a prune
// whose unsubscribe lands after a racing re-create only drops the count,
// never the subscription a live member depends on. The room shard lock
// totally orders create/prune transitions per room, so counts stay
// balanced no matter how the hub-side calls interleave.
func (h *Hub) subscribeTopic(ctx context.Context, topic string, handler pubsub.Handler) error {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	if ts, ok := h.subs[topic]; ok {
		ts.refs++
		return nil
	}

	sub, err := h.ps.Subscribe(ctx, topic, handler)
	if err != nil {
		return err
	}
	h.subs[topic] = &topicSub{sub: sub, refs: 1}
	return nil
}

func (h *Hub) unsubscribeTopic(topic string) {
	h.subsMu.Lock()
	ts, ok := h.subs[topic]
	if ok {
		ts.refs--
		if ts.refs > 0 {
			h.subsMu.Unlock()
			return
		}
		delete(h.subs, topic)
	}
	h.subsMu.Unlock()

	if ok {
		if err := ts.sub.Unsubscribe(); err != nil {
			h.logger.Warn("failed to unsubscribe", "error", err, "topic", topic)
		}
	}
}

// onRoomEvent fans a room-scoped event out to the room's current
// members, skipping the originating connection.
func (h *Hub) onRoomEvent(ctx context.Context, msg *pubsub.Message) {
	roomID, err := uuid.Parse(strings.TrimPrefix(msg.Topic, "room:"))
	if err != nil {
		h.logger.Warn("bad room topic", "topic", msg.Topic)
		return
	}

	out := &Message{Type: msg.Type, Payload: msg.Payload, Timestamp: time.Now()}
	for _, member := range h.rooms.Members(roomID) {
		if member.ID() == msg.Origin {
			continue
		}
		_ = member.Send(out)
	}
}

// onUserEvent delivers an identity-addressed event to every live
// connection of the target user.
func (h *Hub) onUserEvent(ctx context.Context, msg *pubsub.Message) {
	userID, err := uuid.Parse(strings.TrimPrefix(msg.Topic, "user:"))
	if err != nil {
		h.logger.Warn("bad user topic", "topic", msg.Topic)
		return
	}

	out := &Message{Type: msg.Type, Payload: msg.Payload, Timestamp: time.Now()}
	for _, conn := range h.registry.ConnectionsOf(userID) {
		_ = conn.Send(out)
	}
}

// onPresenceEvent broadcasts a presence transition to every connection.
func (h *Hub) onPresenceEvent(ctx context.Context, msg *pubsub.Message) {
	out := &Message{Type: msg.Type, Payload: msg.Payload, Timestamp: time.Now()}
	h.registry.ForEach(func(c *Client) {
		_ = c.Send(out)
	})
}
