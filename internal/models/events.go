package models

// Push event types delivered to recipient connections.
const (
	PushTypeMessage  = "message"
	PushTypeEdit     = "edit"
	PushTypeDelete   = "delete"
	PushTypeReaction = "reaction"
	PushTypeRead     = "read"
	PushTypeTyping   = "typing"
	PushTypeSystem   = "system"
	PushTypeKicked   = "kicked"
	PushTypeAck      = "ack"
	PushTypeError    = "error"
)

// PushEvent is the outbound websocket envelope. Only the fields
// relevant to Type are populated; clients reconcile local state from
// them without a re-fetch.
type PushEvent struct {
	Type             string        `json:"type"`
	ConversationID   string        `json:"conversation_id,omitempty"`
	Message          *Message      `json:"message,omitempty"`
	MessageCreatedAt int64         `json:"message_created_at,omitempty"`
	MessageID        string        `json:"message_id,omitempty"`
	Text             *string       `json:"text,omitempty"`
	MediaPaths       []string      `json:"media_paths,omitempty"`
	EditedAt         int64         `json:"edited_at,omitempty"`
	DeletedAt        int64         `json:"deleted_at,omitempty"`
	DeletedBySub     string        `json:"deleted_by_sub,omitempty"`
	Reactions        ReactionMap   `json:"reactions,omitempty"`
	ReactionUsers    ReactionUsers `json:"reaction_users,omitempty"`
	ReaderID         string        `json:"reader_id,omitempty"`
	ReadAt           int64         `json:"read_at,omitempty"`
	ExpiresAt        int64         `json:"expires_at,omitempty"`
	SenderID         string        `json:"sender_id,omitempty"`
	SenderDisplay    string        `json:"sender_display_name,omitempty"`
	IsTyping         bool          `json:"is_typing,omitempty"`
	SystemKind       string        `json:"system_kind,omitempty"`
	TargetSub        string        `json:"target_sub,omitempty"`
	Code             string        `json:"code,omitempty"`
	Error            string        `json:"error,omitempty"`
}
