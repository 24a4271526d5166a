package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parleychat/parley/internal/domain"
)

// MessageRepository is the hub's view of the message store. Messages are
// created by the message service; the hub only reads and advances the
// delivery status columns.
type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Status returns the current delivery status of a message
func (r *MessageRepository) Status(ctx context.Context, messageID uuid.UUID) (domain.MessageStatus, error) {
	var status domain.MessageStatus
	err := r.db.Pool.QueryRow(ctx, `
		SELECT status FROM messages WHERE id = $1
	`, messageID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrMessageNotFound
	}
	return status, err
}

// MarkDelivered advances a message from sent to delivered. The WHERE
// clause keeps the transition monotonic under concurrent markers: only
// one writer observes rows affected > 0, everyone else is a no-op.
func (r *MessageRepository) MarkDelivered(ctx context.Context, messageID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE messages
		SET status = 'delivered', delivered_at = $2
		WHERE id = $1 AND status = 'sent'
	`, messageID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSeen advances a message to seen and records the observer in the
// read-by set. Advancing an already-seen message is a no-op; the read-by
// append never duplicates an observer.
func (r *MessageRepository) MarkSeen(ctx context.Context, messageID, observerID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE messages
		SET status = 'seen',
		    seen_at = $2,
		    read_by = CASE WHEN $3 = ANY(read_by) THEN read_by ELSE array_append(read_by, $3) END
		WHERE id = $1 AND status IN ('sent', 'delivered')
	`, messageID, at, observerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
