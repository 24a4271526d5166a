package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/pubsub"
)

// fakeMessageStore is an in-memory MessageStore with the same
// conditional-update contract as the Postgres repository.
type fakeMessageStore struct {
	mu         sync.Mutex
	statuses   map[uuid.UUID]domain.MessageStatus
	readBy     map[uuid.UUID][]uuid.UUID
	failWrites bool
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		statuses: make(map[uuid.UUID]domain.MessageStatus),
		readBy:   make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *fakeMessageStore) put(id uuid.UUID, status domain.MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
}

func (s *fakeMessageStore) get(id uuid.UUID) domain.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

func (s *fakeMessageStore) Status(ctx context.Context, messageID uuid.UUID) (domain.MessageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[messageID]
	if !ok {
		return "", domain.ErrMessageNotFound
	}
	return status, nil
}

func (s *fakeMessageStore) MarkDelivered(ctx context.Context, messageID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return false, errors.New("store unavailable")
	}
	if s.statuses[messageID] != domain.StatusSent {
		return false, nil
	}
	s.statuses[messageID] = domain.StatusDelivered
	return true, nil
}

func (s *fakeMessageStore) MarkSeen(ctx context.Context, messageID, observerID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return false, errors.New("store unavailable")
	}
	current := s.statuses[messageID]
	if current != domain.StatusSent && current != domain.StatusDelivered {
		return false, nil
	}
	s.statuses[messageID] = domain.StatusSeen
	s.readBy[messageID] = append(s.readBy[messageID], observerID)
	return true, nil
}

// fakeUserStore records presence writes
type fakeUserStore struct {
	mu       sync.Mutex
	online   map[uuid.UUID]bool
	lastSeen map[uuid.UUID]time.Time
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		online:   make(map[uuid.UUID]bool),
		lastSeen: make(map[uuid.UUID]time.Time),
	}
}

func (s *fakeUserStore) SetOnline(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = true
	return nil
}

func (s *fakeUserStore) SetOffline(ctx context.Context, userID uuid.UUID, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = false
	s.lastSeen[userID] = lastSeen
	return nil
}

func (s *fakeUserStore) Presence(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &domain.Presence{UserID: userID, Online: s.online[userID]}
	if ls, ok := s.lastSeen[userID]; ok {
		p.LastSeenAt = &ls
	}
	return p, nil
}

func (s *fakeUserStore) isOnline(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

// ============================================================================
// Test helpers
// ============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHub builds a hub over fake stores and an in-memory pubsub, with
// the presence subscription already attached (Run is not started; the
// lifecycle handlers are exercised directly for determinism).
func newTestHub(t *testing.T) (*Hub, *fakeMessageStore, *fakeUserStore) {
	t.Helper()

	messages := newFakeMessageStore()
	users := newFakeUserStore()
	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { _ = ps.Close() })

	h := NewHub(messages, users, ps, 1000, discardLogger())
	require.NoError(t, h.subscribeTopic(context.Background(), pubsub.Topics.Presence(), h.onPresenceEvent))
	return h, messages, users
}

func connect(t *testing.T, h *Hub, userID uuid.UUID, username string) *Client {
	t.Helper()
	c := NewClient(h, nil, userID, username, discardLogger())
	h.handleRegister(context.Background(), c)
	return c
}

func disconnect(h *Hub, c *Client) {
	h.handleUnregister(context.Background(), c)
}

func joinRoom(t *testing.T, h *Hub, c *Client, roomID uuid.UUID) {
	t.Helper()
	sendEvent(t, h, c, EventTypeJoin, RoomPayload{ConversationID: roomID.String()})
	require.True(t, c.InRoom(roomID))
}

func sendEvent(t *testing.T, h *Hub, c *Client, eventType string, payload interface{}) {
	t.Helper()
	msg, err := NewMessage(eventType, payload)
	require.NoError(t, err)
	h.HandleEvent(context.Background(), c, msg)
}

// recvEvent waits for the next event of the given type on a client's
// send buffer, skipping unrelated traffic (e.g. presence noise).
func recvEvent(t *testing.T, c *Client, eventType string) *Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				t.Fatalf("send channel closed while waiting for %s", eventType)
			}
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == eventType {
				return &msg
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", eventType)
		}
	}
}

// expectNoEvent asserts that no event of the given type shows up within
// the wait window.
func expectNoEvent(t *testing.T, c *Client, eventType string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			var msg Message
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == eventType {
				t.Fatalf("unexpected %s event: %s", eventType, string(msg.Payload))
			}
		case <-deadline:
			return
		}
	}
}

func decodePayload(t *testing.T, msg *Message, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(msg.Payload, v))
}
