package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/pubsub"
)

type statusFixture struct {
	sc       *StatusCoordinator
	store    *fakeMessageStore
	ps       *pubsub.MemoryPubSub
	received chan *pubsub.Message
	roomID   uuid.UUID
}

func newStatusFixture(t *testing.T) *statusFixture {
	t.Helper()
	f := &statusFixture{
		store:    newFakeMessageStore(),
		ps:       pubsub.NewMemoryPubSub(),
		received: make(chan *pubsub.Message, 16),
		roomID:   uuid.New(),
	}
	t.Cleanup(func() { _ = f.ps.Close() })

	_, err := f.ps.Subscribe(context.Background(), pubsub.Topics.Room(f.roomID.String()), func(ctx context.Context, msg *pubsub.Message) {
		f.received <- msg
	})
	require.NoError(t, err)

	f.sc = NewStatusCoordinator(f.store, f.ps, discardLogger())
	return f
}

func (f *statusFixture) waitUpdate(t *testing.T) (*pubsub.Message, StatusUpdatePayload) {
	t.Helper()
	select {
	case msg := <-f.received:
		var p StatusUpdatePayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		return msg, p
	case <-time.After(time.Second):
		t.Fatal("no status update broadcast")
		return nil, StatusUpdatePayload{}
	}
}

func (f *statusFixture) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.received:
		t.Fatalf("unexpected broadcast: %s %s", msg.Type, string(msg.Payload))
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStatusCoordinator_DeliveredPersistsThenBroadcasts(t *testing.T) {
	f := newStatusFixture(t)
	messageID := uuid.New()
	observer := uuid.New()
	origin := uuid.New()
	f.store.put(messageID, domain.StatusSent)

	f.sc.MarkDelivered(context.Background(), messageID, f.roomID, observer, origin)

	msg, p := f.waitUpdate(t)
	assert.Equal(t, EventTypeStatusUpdate, msg.Type)
	assert.Equal(t, origin, msg.Origin)
	assert.Equal(t, messageID, p.MessageID)
	assert.Equal(t, f.roomID, p.ConversationID)
	assert.Equal(t, domain.StatusDelivered, p.Status)
	assert.Equal(t, observer, p.ObserverUserID)

	// The broadcast never precedes the durable write
	assert.Equal(t, domain.StatusDelivered, f.store.get(messageID))
}

func TestStatusCoordinator_SeenSkipsDelivered(t *testing.T) {
	f := newStatusFixture(t)
	messageID := uuid.New()
	observer := uuid.New()
	f.store.put(messageID, domain.StatusSent)

	// sent -> seen directly is a legal forward jump
	f.sc.MarkSeen(context.Background(), messageID, f.roomID, observer, uuid.New())

	_, p := f.waitUpdate(t)
	assert.Equal(t, domain.StatusSeen, p.Status)
	assert.Equal(t, domain.StatusSeen, f.store.get(messageID))
	assert.Contains(t, f.store.readBy[messageID], observer)
}

func TestStatusCoordinator_BackwardTransitionIsSilent(t *testing.T) {
	f := newStatusFixture(t)
	messageID := uuid.New()
	f.store.put(messageID, domain.StatusSeen)

	f.sc.MarkDelivered(context.Background(), messageID, f.roomID, uuid.New(), uuid.New())

	f.expectSilence(t)
	assert.Equal(t, domain.StatusSeen, f.store.get(messageID), "status never regresses")
}

func TestStatusCoordinator_DuplicateMarkIsSilent(t *testing.T) {
	f := newStatusFixture(t)
	messageID := uuid.New()
	f.store.put(messageID, domain.StatusSent)

	f.sc.MarkDelivered(context.Background(), messageID, f.roomID, uuid.New(), uuid.New())
	f.waitUpdate(t)

	f.sc.MarkDelivered(context.Background(), messageID, f.roomID, uuid.New(), uuid.New())
	f.expectSilence(t)
}

func TestStatusCoordinator_UnknownMessageIsSilent(t *testing.T) {
	f := newStatusFixture(t)

	f.sc.MarkDelivered(context.Background(), uuid.New(), f.roomID, uuid.New(), uuid.New())
	f.expectSilence(t)
}

func TestStatusCoordinator_WriteFailureNotBroadcast(t *testing.T) {
	f := newStatusFixture(t)
	messageID := uuid.New()
	f.store.put(messageID, domain.StatusSent)
	f.store.failWrites = true

	f.sc.MarkDelivered(context.Background(), messageID, f.roomID, uuid.New(), uuid.New())

	f.expectSilence(t)
	assert.Equal(t, domain.StatusSent, f.store.get(messageID), "failed write leaves status untouched")
}

// staleReadStore reports sent on every read so the conditional write has
// to resolve the race.
type staleReadStore struct {
	*fakeMessageStore
}

func (s staleReadStore) Status(ctx context.Context, messageID uuid.UUID) (domain.MessageStatus, error) {
	return domain.StatusSent, nil
}

func TestStatusCoordinator_LostRaceIsSilent(t *testing.T) {
	f := newStatusFixture(t)
	messageID := uuid.New()
	f.store.put(messageID, domain.StatusDelivered)

	// The read said sent, but by write time another marker already
	// advanced the message; the conditional update reports no rows and
	// this caller stays silent.
	sc := NewStatusCoordinator(staleReadStore{f.store}, f.ps, discardLogger())
	sc.MarkDelivered(context.Background(), messageID, f.roomID, uuid.New(), uuid.New())

	f.expectSilence(t)
	assert.Equal(t, domain.StatusDelivered, f.store.get(messageID))
}
