package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserSummary is the slice of a user profile that rides along with
// realtime events (friend notifications, typing indicators). The full
// profile lives in the account service; the hub only relays this view.
type UserSummary struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

// Presence is the aggregate online state of a user, derived from the
// set of live connections. LastSeenAt is only meaningful while offline.
type Presence struct {
	UserID     uuid.UUID  `json:"user_id"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}
