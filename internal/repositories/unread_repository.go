package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-hub/internal/models"
)

// UnreadRepository maintains per-recipient unread counters, one row per
// (user, conversation).
type UnreadRepository interface {
	Upsert(ctx context.Context, counter models.UnreadCounter) error
	Clear(ctx context.Context, userID, conversationID string) error
	ListForUser(ctx context.Context, userID string) ([]models.UnreadCounter, error)
}

// UnreadRepo is a sqlx-backed implementation.
type UnreadRepo struct {
	db *sqlx.DB
}

// NewUnreadRepo constructs an UnreadRepo.
func NewUnreadRepo(db *sqlx.DB) *UnreadRepo {
	return &UnreadRepo{db: db}
}

// Upsert creates the counter or increments it, refreshing the
// last-message projection in the same write.
func (r *UnreadRepo) Upsert(ctx context.Context, counter models.UnreadCounter) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO unread_counters
        (user_id, conversation_id, kind, sender_id, sender_display_name, last_message_created_at, message_count)
        VALUES ($1, $2, $3, $4, $5, $6, 1)
        ON CONFLICT (user_id, conversation_id) DO UPDATE SET
            kind = EXCLUDED.kind,
            sender_id = EXCLUDED.sender_id,
            sender_display_name = EXCLUDED.sender_display_name,
            last_message_created_at = EXCLUDED.last_message_created_at,
            message_count = unread_counters.message_count + 1`,
		counter.UserID, counter.ConversationID, counter.Kind, counter.SenderID,
		counter.SenderDisplayName, counter.LastMessageCreatedAt)
	return err
}

// Clear drops the counter when the user reads or clears the conversation.
func (r *UnreadRepo) Clear(ctx context.Context, userID, conversationID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM unread_counters WHERE user_id=$1 AND conversation_id=$2`,
		userID, conversationID)
	return err
}

// ListForUser returns the badge rows for a user.
func (r *UnreadRepo) ListForUser(ctx context.Context, userID string) ([]models.UnreadCounter, error) {
	var counters []models.UnreadCounter
	err := r.db.SelectContext(ctx, &counters, `SELECT user_id, conversation_id, kind, sender_id, sender_display_name,
        last_message_created_at, message_count FROM unread_counters WHERE user_id=$1 ORDER BY last_message_created_at DESC`, userID)
	return counters, err
}
