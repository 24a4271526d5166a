package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageStatus_Ordering(t *testing.T) {
	assert.True(t, StatusSent.Before(StatusDelivered))
	assert.True(t, StatusSent.Before(StatusSeen))
	assert.True(t, StatusDelivered.Before(StatusSeen))

	// Never backwards or sideways
	assert.False(t, StatusSeen.Before(StatusDelivered))
	assert.False(t, StatusSeen.Before(StatusSent))
	assert.False(t, StatusDelivered.Before(StatusSent))
	assert.False(t, StatusDelivered.Before(StatusDelivered))
}

func TestMessageStatus_Valid(t *testing.T) {
	assert.True(t, StatusSent.Valid())
	assert.True(t, StatusDelivered.Valid())
	assert.True(t, StatusSeen.Valid())

	assert.False(t, MessageStatus("").Valid())
	assert.False(t, MessageStatus("read").Valid())
}

func TestMessageStatus_UnknownNeverWins(t *testing.T) {
	unknown := MessageStatus("archived")
	assert.True(t, unknown.Before(StatusSent))
	assert.False(t, StatusSent.Before(unknown))
}
