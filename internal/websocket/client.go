package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/parleychat/parley/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (signal envelopes carry SDP blobs)
	maxMessageSize = 65536
)

// Client represents one live connection session. Identity is fixed at
// construction: the handshake has already been validated by the time a
// Client exists, so a session belongs to exactly one user for its whole
// lifetime.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	id       uuid.UUID
	userID   uuid.UUID
	username string
	rooms    map[uuid.UUID]bool // conversation IDs this connection is subscribed to
	limiter  *rate.Limiter      // inbound event budget
	mu       sync.RWMutex
	closed   bool // send channel released; guarded by mu
	logger   *slog.Logger
}

// NewClient creates a new client for an authenticated connection
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, username string, logger *slog.Logger) *Client {
	eventsPerSec := 20
	if hub != nil && hub.eventRateLimit > 0 {
		eventsPerSec = hub.eventRateLimit
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		id:       uuid.New(),
		userID:   userID,
		username: username,
		rooms:    make(map[uuid.UUID]bool),
		limiter:  rate.NewLimiter(rate.Limit(eventsPerSec), eventsPerSec*2),
		logger:   logger,
	}
}

// ID returns the connection identifier
func (c *Client) ID() uuid.UUID {
	return c.id
}

// UserID returns the identity this connection belongs to
func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Username returns the client's username
func (c *Client) Username() string {
	return c.username
}

// Summary returns the identity view relayed in typing and call events
func (c *Client) Summary() domain.UserSummary {
	return domain.UserSummary{ID: c.userID, Username: c.username}
}

// trackRoom records a room membership on the session
func (c *Client) trackRoom(roomID uuid.UUID) {
	c.mu.Lock()
	c.rooms[roomID] = true
	c.mu.Unlock()
}

// untrackRoom forgets a room membership on the session
func (c *Client) untrackRoom(roomID uuid.UUID) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Rooms returns all rooms this connection has joined
func (c *Client) Rooms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// InRoom checks if the connection has joined a room
func (c *Client) InRoom(roomID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Warn("websocket read error", "error", err, "user_id", c.userID)
				}
				return
			}

			if !c.limiter.Allow() {
				c.logger.Debug("event rate exceeded, dropping", "user_id", c.userID, "conn_id", c.id)
				continue
			}

			// Malformed frames are dropped, never answered
			var msg Message
			if err := json.Unmarshal(message, &msg); err != nil {
				c.logger.Debug("dropping unparseable event", "user_id", c.userID)
				continue
			}

			c.hub.HandleEvent(ctx, c, &msg)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues a message for delivery. Delivery is fire-and-forget: if the
// connection's buffer is full the message is dropped, not retried. A
// fan-out may still hold this connection in a snapshot taken just before
// it disconnected; sending after Close is a silent drop, never a panic.
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message", "user_id", c.userID, "conn_id", c.id)
	}
	return nil
}

// Close releases the send channel so the write pump drains and exits.
// Idempotent; the client owns its channel, the hub only asks.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
