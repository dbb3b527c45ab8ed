package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-hub/internal/models"
)

// ReceiptRepository stores append-only read receipts.
type ReceiptRepository interface {
	Record(ctx context.Context, receipt models.ReadReceipt) error
	ListByConversation(ctx context.Context, conversationID string) ([]models.ReadReceipt, error)
}

// ReceiptRepo is a sqlx-backed implementation.
type ReceiptRepo struct {
	db *sqlx.DB
}

// NewReceiptRepo constructs a ReceiptRepo.
func NewReceiptRepo(db *sqlx.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// Record writes one receipt row. Re-reading the same message is a no-op.
func (r *ReceiptRepo) Record(ctx context.Context, receipt models.ReadReceipt) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO read_receipts (conversation_id, reader_id, message_created_at, read_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (conversation_id, reader_id, message_created_at) DO NOTHING`,
		receipt.ConversationID, receipt.ReaderID, receipt.MessageCreatedAt, receipt.ReadAt)
	return err
}

// ListByConversation returns all receipts of a conversation, so a
// sender who reconnects later still learns seen status.
func (r *ReceiptRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.ReadReceipt, error) {
	var receipts []models.ReadReceipt
	err := r.db.SelectContext(ctx, &receipts, `SELECT conversation_id, reader_id, message_created_at, read_at
        FROM read_receipts WHERE conversation_id=$1 ORDER BY message_created_at ASC`, conversationID)
	return receipts, err
}
