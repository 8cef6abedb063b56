package repository

import (
	"context"
	"fmt"
	"time"

	"palpitos-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository handles database operations for sync messages
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository creates a new sync message repository
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new sync message
func (r *MessageRepository) Create(ctx context.Context, msg *models.SyncMessage) error {
	query := `
		INSERT INTO sync_messages (id, couple_id, from_user_id, to_user_id, message, synced_emotion, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		msg.ID, msg.CoupleID, msg.FromUserID, msg.ToUserID,
		msg.Message, msg.SyncedEmotion, msg.Read, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync message: %w", err)
	}
	return nil
}

// CountForEmotionSince counts messages a sender has sent for one emotion
// within the trailing window starting at since. This count is the
// authoritative quota source; callers must not cache it across sends.
func (r *MessageRepository) CountForEmotionSince(ctx context.Context, coupleID, fromUserID string, emotion models.Emotion, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM sync_messages
		WHERE couple_id = $1 AND from_user_id = $2 AND synced_emotion = $3 AND created_at >= $4
	`
	var count int
	err := r.db.QueryRow(ctx, query, coupleID, fromUserID, emotion, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for emotion: %w", err)
	}
	return count, nil
}

// ListUnread retrieves unread messages addressed to a user, newest first
func (r *MessageRepository) ListUnread(ctx context.Context, toUserID string) ([]*models.SyncMessage, error) {
	query := `
		SELECT id, couple_id, from_user_id, to_user_id, message, synced_emotion, read, created_at
		FROM sync_messages
		WHERE to_user_id = $1 AND read = FALSE
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, toUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.SyncMessage
	for rows.Next() {
		var msg models.SyncMessage
		err := rows.Scan(
			&msg.ID, &msg.CoupleID, &msg.FromUserID, &msg.ToUserID,
			&msg.Message, &msg.SyncedEmotion, &msg.Read, &msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync messages: %w", err)
	}

	return messages, nil
}

// CountUnread counts unread messages addressed to a user
func (r *MessageRepository) CountUnread(ctx context.Context, toUserID string) (int, error) {
	query := `SELECT COUNT(*) FROM sync_messages WHERE to_user_id = $1 AND read = FALSE`
	var count int
	err := r.db.QueryRow(ctx, query, toUserID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// MarkRead sets the read flag on one message addressed to the user.
// Marking an already-read message again is harmless.
func (r *MessageRepository) MarkRead(ctx context.Context, toUserID, messageID string) (int64, error) {
	query := `UPDATE sync_messages SET read = TRUE WHERE id = $1 AND to_user_id = $2`
	result, err := r.db.Exec(ctx, query, messageID, toUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark message read: %w", err)
	}
	return result.RowsAffected(), nil
}

// MarkAllRead sets the read flag on every unread message addressed to the
// user and returns how many rows were touched.
func (r *MessageRepository) MarkAllRead(ctx context.Context, toUserID string) (int64, error) {
	query := `UPDATE sync_messages SET read = TRUE WHERE to_user_id = $1 AND read = FALSE`
	result, err := r.db.Exec(ctx, query, toUserID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all messages read: %w", err)
	}
	return result.RowsAffected(), nil
}
