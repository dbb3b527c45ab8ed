package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-hub/internal/models"
)

var ErrConnectionNotFound = errors.New("connection not found")

// ConnectionRepository is the connection directory: the durable record
// of every live connection. It is the authoritative source of sender
// identity for every inbound event.
type ConnectionRepository interface {
	Register(ctx context.Context, conn models.Connection) error
	SetConversation(ctx context.Context, handle, conversationID string, expiresAt time.Time) error
	Touch(ctx context.Context, handle string, expiresAt time.Time) error
	GetByHandle(ctx context.Context, handle string) (models.Connection, error)
	ListHandlesByUser(ctx context.Context, userID string) ([]string, error)
	ListHandlesByConversation(ctx context.Context, conversationID string) ([]string, error)
	ListRefsByConversation(ctx context.Context, conversationID string) ([]models.ConnectionRef, error)
	ListRefsByUsers(ctx context.Context, userIDs []string) ([]models.ConnectionRef, error)
	Remove(ctx context.Context, handle string) error
}

// ConnectionRepo is a sqlx implementation of ConnectionRepository.
type ConnectionRepo struct {
	db *sqlx.DB
}

// NewConnectionRepo constructs a ConnectionRepo.
func NewConnectionRepo(db *sqlx.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

// Register creates the directory row for a new connection.
func (r *ConnectionRepo) Register(ctx context.Context, conn models.Connection) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO connections (handle, user_id, display_name, username_lower, conversation_id, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (handle) DO UPDATE SET user_id = EXCLUDED.user_id, display_name = EXCLUDED.display_name,
            username_lower = EXCLUDED.username_lower, conversation_id = EXCLUDED.conversation_id, expires_at = EXCLUDED.expires_at`,
		conn.Handle, conn.UserID, conn.DisplayName, conn.UsernameLower, conn.ConversationID, conn.ExpiresAt)
	return err
}

// SetConversation moves the connection into a conversation and refreshes expiry.
func (r *ConnectionRepo) SetConversation(ctx context.Context, handle, conversationID string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET conversation_id=$2, expires_at=$3 WHERE handle=$1`,
		handle, conversationID, expiresAt)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

// Touch refreshes the expiry on activity. Callers treat failure as non-fatal.
func (r *ConnectionRepo) Touch(ctx context.Context, handle string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE connections SET expires_at=$2 WHERE handle=$1`, handle, expiresAt)
	return err
}

// GetByHandle resolves the connection row for a handle.
func (r *ConnectionRepo) GetByHandle(ctx context.Context, handle string) (models.Connection, error) {
	var conn models.Connection
	err := r.db.GetContext(ctx, &conn, `SELECT handle, user_id, display_name, username_lower, conversation_id, expires_at
        FROM connections WHERE handle=$1`, handle)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Connection{}, ErrConnectionNotFound
	}
	return conn, err
}

// ListHandlesByUser returns every live handle owned by a user. Rows
// whose expiry has lapsed are invisible to recipient listing: the
// socket may already be gone and its row just not swept yet.
func (r *ConnectionRepo) ListHandlesByUser(ctx context.Context, userID string) ([]string, error) {
	var handles []string
	err := r.db.SelectContext(ctx, &handles, `SELECT handle FROM connections WHERE user_id=$1 AND expires_at > now()`, userID)
	return handles, err
}

// ListHandlesByConversation returns every handle currently joined to a conversation.
func (r *ConnectionRepo) ListHandlesByConversation(ctx context.Context, conversationID string) ([]string, error) {
	var handles []string
	err := r.db.SelectContext(ctx, &handles, `SELECT handle FROM connections WHERE conversation_id=$1 AND expires_at > now()`, conversationID)
	return handles, err
}

// ListRefsByConversation returns (handle, user) pairs for per-recipient filtering.
func (r *ConnectionRepo) ListRefsByConversation(ctx context.Context, conversationID string) ([]models.ConnectionRef, error) {
	var refs []models.ConnectionRef
	err := r.db.SelectContext(ctx, &refs, `SELECT handle, user_id FROM connections WHERE conversation_id=$1 AND expires_at > now()`, conversationID)
	return refs, err
}

// ListRefsByUsers returns (handle, user) pairs for every live
// connection owned by any of the given users.
func (r *ConnectionRepo) ListRefsByUsers(ctx context.Context, userIDs []string) ([]models.ConnectionRef, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var refs []models.ConnectionRef
	err := r.db.SelectContext(ctx, &refs, `SELECT handle, user_id FROM connections WHERE user_id = ANY($1) AND expires_at > now()`, pq.Array(userIDs))
	return refs, err
}

// Remove deletes the directory row. Removing an absent handle is not an error.
func (r *ConnectionRepo) Remove(ctx context.Context, handle string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE handle=$1`, handle)
	return err
}
