package websocket

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(EventTypeJoin, RoomPayload{ConversationID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, EventTypeJoin, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	var p RoomPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "c1", p.ConversationID)
}

func TestNewMessage_UnmarshalablePayload(t *testing.T) {
	_, err := NewMessage("bad", make(chan int))
	assert.Error(t, err)
}

// The signal body must survive the inbound envelope as raw bytes; the
// hub relays it without interpreting the SDP inside.
func TestCallSignalPayload_SignalStaysRaw(t *testing.T) {
	wire := `{"conversation_id":"` + uuid.NewString() + `","kind":"answer","signal":{"sdp":"v=0","custom":[1,2,3]}}`

	var p CallSignalPayload
	require.NoError(t, json.Unmarshal([]byte(wire), &p))
	assert.Equal(t, SignalKindAnswer, p.Kind)
	assert.JSONEq(t, `{"sdp":"v=0","custom":[1,2,3]}`, string(p.Signal))
}

func TestPresencePayload_OmitsLastSeenWhenOnline(t *testing.T) {
	data, err := json.Marshal(PresencePayload{UserID: uuid.New()})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_seen")
}
