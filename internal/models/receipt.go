package models

// ReadReceipt records that a reader has seen a message. Append-only,
// one row per (conversation, reader, message).
type ReadReceipt struct {
	ConversationID   string `db:"conversation_id" json:"conversation_id"`
	ReaderID         string `db:"reader_id" json:"reader_id"`
	MessageCreatedAt int64  `db:"message_created_at" json:"message_created_at"`
	ReadAt           int64  `db:"read_at" json:"read_at"`
}

// Unread counter kinds.
const (
	UnreadKindMessage = "message"
	UnreadKindAdded   = "added"
)

// UnreadCounter is the per-recipient badge row for one conversation.
// Incremented while the recipient is offline, deleted on read.
type UnreadCounter struct {
	UserID               string `db:"user_id" json:"user_id"`
	ConversationID       string `db:"conversation_id" json:"conversation_id"`
	Kind                 string `db:"kind" json:"kind"`
	SenderID             string `db:"sender_id" json:"sender_id"`
	SenderDisplayName    string `db:"sender_display_name" json:"sender_display_name"`
	LastMessageCreatedAt int64  `db:"last_message_created_at" json:"last_message_created_at"`
	MessageCount         int    `db:"message_count" json:"message_count"`
}
