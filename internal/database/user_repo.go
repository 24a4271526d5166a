package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parleychat/parley/internal/domain"
)

// UserRepository is the hub's view of the user store: the online flag and
// last-seen timestamp. Profile data is owned by the account service.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// SetOnline marks a user online
func (r *UserRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE users SET is_online = true WHERE id = $1
	`, userID)
	return err
}

// SetOffline marks a user offline and records when they were last seen
func (r *UserRepository) SetOffline(ctx context.Context, userID uuid.UUID, lastSeen time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE users SET is_online = false, last_seen_at = $2 WHERE id = $1
	`, userID, lastSeen)
	return err
}

// Presence reads the persisted presence view of a user
func (r *UserRepository) Presence(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	p := &domain.Presence{UserID: userID}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT is_online, last_seen_at FROM users WHERE id = $1
	`, userID).Scan(&p.Online, &p.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return p, err
}
