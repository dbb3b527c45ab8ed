package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// Message kinds.
const (
	MessageKindUser   = "user"
	MessageKindSystem = "system"
)

// ReactionMap maps an emoji to the set of user ids reacting with it.
// Stored as JSONB.
type ReactionMap map[string][]string

// Value implements driver.Valuer.
func (m ReactionMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *ReactionMap) Scan(src any) error {
	return scanJSON(src, m)
}

// ReactionUsers maps a reacting user id to a display-name snapshot
// taken at reaction time. Stored as JSONB.
type ReactionUsers map[string]string

// Value implements driver.Valuer.
func (m ReactionUsers) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *ReactionUsers) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON map", src)
	}
}

// Message is one persisted conversation message, keyed by
// (conversation_id, created_at). CreatedAt is a millisecond timestamp
// that doubles as the sort key; MessageID is a separate opaque id kept
// for client-side de-duplication.
type Message struct {
	ConversationID    string         `db:"conversation_id" json:"conversation_id"`
	CreatedAt         int64          `db:"created_at" json:"created_at"`
	MessageID         string         `db:"message_id" json:"message_id"`
	SenderID          string         `db:"sender_id" json:"sender_id"`
	SenderDisplayName string         `db:"sender_display_name" json:"sender_display_name"`
	Kind              string         `db:"kind" json:"kind"`
	Text              *string        `db:"text" json:"text,omitempty"`
	MediaPaths        pq.StringArray `db:"media_paths" json:"media_paths,omitempty"`
	TTLSeconds        *int64         `db:"ttl_seconds" json:"ttl_seconds,omitempty"`
	ExpiresAt         *int64         `db:"expires_at" json:"expires_at,omitempty"`
	EditedAt          *int64         `db:"edited_at" json:"edited_at,omitempty"`
	DeletedAt         *int64         `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBySub      *string        `db:"deleted_by_sub" json:"deleted_by_sub,omitempty"`
	Reactions         ReactionMap    `db:"reactions" json:"reactions,omitempty"`
	ReactionUsers     ReactionUsers  `db:"reaction_users" json:"reaction_users,omitempty"`
}

// Deleted reports whether the message has been soft deleted.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}
