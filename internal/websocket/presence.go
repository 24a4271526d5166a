package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/pubsub"
)

// UserStore is the external user-store collaborator. The hub writes the
// online flag and last-seen timestamp through it and reads nothing else.
type UserStore interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID, lastSeen time.Time) error
	Presence(ctx context.Context, userID uuid.UUID) (*domain.Presence, error)
}

// PresenceTracker derives online/offline state from registry crossings.
// The registry reports the 0→1 and 1→0 transitions, so a multi-device
// user produces exactly one user:online and one user:offline no matter
// how many connections they open and close in between.
type PresenceTracker struct {
	registry *Registry
	store    UserStore
	ps       pubsub.PubSub
	logger   *slog.Logger
}

// NewPresenceTracker creates a presence tracker
func NewPresenceTracker(registry *Registry, store UserStore, ps pubsub.PubSub, logger *slog.Logger) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		store:    store,
		ps:       ps,
		logger:   logger.With("component", "presence"),
	}
}

// IsOnline reports whether the user has at least one live connection
func (pt *PresenceTracker) IsOnline(userID uuid.UUID) bool {
	return pt.registry.ConnectionCount(userID) > 0
}

// PresenceOf combines the live registry view with the persisted
// last-seen timestamp. Serves the internal presence endpoint.
func (pt *PresenceTracker) PresenceOf(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	p, err := pt.store.Presence(ctx, userID)
	if err != nil {
		return nil, err
	}
	// The registry is the live truth; the store may lag behind it
	p.Online = pt.IsOnline(userID)
	return p, nil
}

// HandleOnline is invoked on the 0→1 crossing only. The store write
// happens with no hub lock held; a write failure degrades to a stale
// flag in the store, not a missed broadcast.
func (pt *PresenceTracker) HandleOnline(ctx context.Context, userID uuid.UUID) {
	if err := pt.store.SetOnline(ctx, userID); err != nil {
		pt.logger.Error("failed to persist online flag", "error", err, "user_id", userID)
	}

	pt.publish(ctx, EventTypeUserOnline, PresencePayload{UserID: userID})
	pt.logger.Debug("user online", "user_id", userID)
}

// HandleOffline is invoked on the 1→0 crossing only and carries the
// last-seen timestamp with the broadcast.
func (pt *PresenceTracker) HandleOffline(ctx context.Context, userID uuid.UUID) {
	lastSeen := time.Now().UTC()
	if err := pt.store.SetOffline(ctx, userID, lastSeen); err != nil {
		pt.logger.Error("failed to persist last seen", "error", err, "user_id", userID)
	}

	pt.publish(ctx, EventTypeUserOffline, PresencePayload{UserID: userID, LastSeen: &lastSeen})
	pt.logger.Debug("user offline", "user_id", userID, "last_seen", lastSeen)
}

func (pt *PresenceTracker) publish(ctx context.Context, eventType string, payload PresencePayload) {
	if err := publishEvent(ctx, pt.ps, pubsub.Topics.Presence(), eventType, uuid.Nil, payload); err != nil {
		pt.logger.Error("failed to publish presence event", "error", err, "user_id", payload.UserID)
	}
}
