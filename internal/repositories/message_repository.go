package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-hub/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageDeleted  = errors.New("message already deleted")
	ErrNotSender       = errors.New("caller is not the message sender")
)

// createAttempts bounds the tie-break retries when two messages land on
// the same millisecond in one conversation.
const createAttempts = 8

const messageColumns = `conversation_id, created_at, message_id, sender_id, sender_display_name, kind,
    text, media_paths, ttl_seconds, expires_at, edited_at, deleted_at, deleted_by_sub, reactions, reaction_users`

// MessageRepository persists messages and runs the lifecycle mutations
// against them. Every invariant is enforced either by a single
// conditional UPDATE or under a row lock on the message itself.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	Get(ctx context.Context, conversationID string, createdAt int64) (models.Message, error)
	List(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	Edit(ctx context.Context, conversationID string, createdAt int64, senderID, text string, mediaPaths []string, editedAt int64) (models.Message, []string, error)
	SoftDelete(ctx context.Context, conversationID string, createdAt int64, senderID string, deletedAt int64) (models.Message, []string, bool, error)
	React(ctx context.Context, conversationID string, createdAt int64, userID, displayName, emoji string, add bool) (models.Message, error)
	ArmExpiry(ctx context.Context, conversationID string, createdAt int64, readerID string, expiresAt int64) (bool, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create inserts the message row. On a created_at collision within the
// conversation the timestamp is bumped by one millisecond and retried,
// so both messages persist with distinct, still-monotonic sort keys.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.Reactions == nil {
		msg.Reactions = models.ReactionMap{}
	}
	if msg.ReactionUsers == nil {
		msg.ReactionUsers = models.ReactionUsers{}
	}
	for i := 0; i < createAttempts; i++ {
		res, err := r.db.ExecContext(ctx, `INSERT INTO messages (`+messageColumns+`)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
            ON CONFLICT (conversation_id, created_at) DO NOTHING`,
			msg.ConversationID, msg.CreatedAt, msg.MessageID, msg.SenderID, msg.SenderDisplayName, msg.Kind,
			msg.Text, pq.StringArray(msg.MediaPaths), msg.TTLSeconds, msg.ExpiresAt, msg.EditedAt,
			msg.DeletedAt, msg.DeletedBySub, msg.Reactions, msg.ReactionUsers)
		if err != nil {
			return models.Message{}, err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return models.Message{}, err
		}
		if count > 0 {
			return msg, nil
		}
		msg.CreatedAt++
	}
	return models.Message{}, fmt.Errorf("create message: no free sort key after %d attempts", createAttempts)
}

// Get fetches one message by its composite key.
func (r *MessageRepo) Get(ctx context.Context, conversationID string, createdAt int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1 AND created_at=$2`,
		conversationID, createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// List returns the most recent messages of a conversation in ascending
// creation order.
func (r *MessageRepo) List(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM (
            SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1 ORDER BY created_at DESC LIMIT $2
        ) recent ORDER BY created_at ASC`, conversationID, limit)
	return msgs, err
}

// Edit replaces text and media of a message. Only the original sender
// may edit, and a deleted message is never editable. mediaPaths fully
// replaces the prior attachment set: a nil or empty slice strips every
// attachment from the message and frees the files for deletion. Returns
// the updated row plus the media references the edit removed.
func (r *MessageRepo) Edit(ctx context.Context, conversationID string, createdAt int64, senderID, text string, mediaPaths []string, editedAt int64) (models.Message, []string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, nil, err
	}
	defer tx.Rollback()

	msg, err := lockMessage(ctx, tx, conversationID, createdAt)
	if err != nil {
		return models.Message{}, nil, err
	}
	if msg.SenderID != senderID {
		return models.Message{}, nil, ErrNotSender
	}
	if msg.Deleted() {
		return models.Message{}, nil, ErrMessageDeleted
	}

	removed := diffPaths(msg.MediaPaths, mediaPaths)
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET text=$3, media_paths=$4, edited_at=$5 WHERE conversation_id=$1 AND created_at=$2`,
		conversationID, createdAt, text, pq.StringArray(mediaPaths), editedAt); err != nil {
		return models.Message{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, nil, err
	}

	msg.Text = &text
	msg.MediaPaths = mediaPaths
	msg.EditedAt = &editedAt
	return msg, removed, nil
}

// SoftDelete strips the message content while keeping the audit trail.
// Idempotent: deleting an already-deleted message reports first=false
// and mutates nothing. Returns the media references freed by the first
// delete.
func (r *MessageRepo) SoftDelete(ctx context.Context, conversationID string, createdAt int64, senderID string, deletedAt int64) (models.Message, []string, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, nil, false, err
	}
	defer tx.Rollback()

	msg, err := lockMessage(ctx, tx, conversationID, createdAt)
	if err != nil {
		return models.Message{}, nil, false, err
	}
	if msg.SenderID != senderID {
		return models.Message{}, nil, false, ErrNotSender
	}
	if msg.Deleted() {
		return msg, nil, false, tx.Commit()
	}

	removed := append([]string(nil), msg.MediaPaths...)
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET text=NULL, media_paths='{}', deleted_at=$3, deleted_by_sub=$4
        WHERE conversation_id=$1 AND created_at=$2`,
		conversationID, createdAt, deletedAt, senderID); err != nil {
		return models.Message{}, nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, nil, false, err
	}

	msg.Text = nil
	msg.MediaPaths = nil
	msg.DeletedAt = &deletedAt
	msg.DeletedBySub = &senderID
	return msg, removed, true, nil
}

// React toggles a reaction under the message row lock. A user holds at
// most one active reaction per message: adding emoji X removes the same
// user from every other emoji set in the same mutation.
func (r *MessageRepo) React(ctx context.Context, conversationID string, createdAt int64, userID, displayName, emoji string, add bool) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	msg, err := lockMessage(ctx, tx, conversationID, createdAt)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Deleted() {
		return models.Message{}, ErrMessageDeleted
	}

	reactions, users := applyReaction(msg.Reactions, msg.ReactionUsers, userID, displayName, emoji, add)

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET reactions=$3, reaction_users=$4 WHERE conversation_id=$1 AND created_at=$2`,
		conversationID, createdAt, reactions, users); err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}

	msg.Reactions = reactions
	msg.ReactionUsers = users
	return msg, nil
}

// ArmExpiry sets expires_at exactly once: the write succeeds only while
// expires_at is still absent, the message carries a TTL, and the reader
// is not the sender. Reports whether this call armed the timer.
func (r *MessageRepo) ArmExpiry(ctx context.Context, conversationID string, createdAt int64, readerID string, expiresAt int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET expires_at=$4
        WHERE conversation_id=$1 AND created_at=$2 AND expires_at IS NULL AND ttl_seconds IS NOT NULL
            AND deleted_at IS NULL AND sender_id <> $3`,
		conversationID, createdAt, readerID, expiresAt)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func lockMessage(ctx context.Context, tx *sqlx.Tx, conversationID string, createdAt int64) (models.Message, error) {
	var msg models.Message
	err := tx.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1 AND created_at=$2 FOR UPDATE`,
		conversationID, createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// applyReaction recomputes the reaction state for one toggle. The user
// is first stripped from every emoji set, so an add lands them in
// exactly one set and a remove clears their membership entirely along
// with their display-name snapshot. Inputs are not mutated.
func applyReaction(prior models.ReactionMap, priorUsers models.ReactionUsers, userID, displayName, emoji string, add bool) (models.ReactionMap, models.ReactionUsers) {
	reactions := models.ReactionMap{}
	for e, reactors := range prior {
		kept := make([]string, 0, len(reactors))
		for _, u := range reactors {
			if u != userID {
				kept = append(kept, u)
			}
		}
		if len(kept) > 0 {
			reactions[e] = kept
		}
	}
	users := models.ReactionUsers{}
	for u, name := range priorUsers {
		users[u] = name
	}
	if add {
		reactions[emoji] = sortedInsert(reactions[emoji], userID)
		users[userID] = displayName
	} else {
		delete(users, userID)
	}
	return reactions, users
}

func diffPaths(prior, next []string) []string {
	keep := make(map[string]struct{}, len(next))
	for _, p := range next {
		keep[p] = struct{}{}
	}
	var removed []string
	for _, p := range prior {
		if _, ok := keep[p]; !ok {
			removed = append(removed, p)
		}
	}
	return removed
}

func sortedInsert(users []string, userID string) []string {
	users = append(users, userID)
	sort.Strings(users)
	return users
}
