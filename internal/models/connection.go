package models

import "time"

// Connection is the durable record of one live websocket connection.
// Rows are written only by the connection directory; the router and
// fanout read them to build recipient sets.
type Connection struct {
	Handle         string    `db:"handle" json:"handle"`
	UserID         string    `db:"user_id" json:"user_id"`
	DisplayName    string    `db:"display_name" json:"display_name"`
	UsernameLower  string    `db:"username_lower" json:"username_lower"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
}

// ConnectionRef pairs a connection handle with its owning user, used
// for per-recipient filtering during fanout.
type ConnectionRef struct {
	Handle string `db:"handle" json:"handle"`
	UserID string `db:"user_id" json:"user_id"`
}

// Identity is the verified identity attached to a connection. It comes
// from the external token verifier and is cached only in the directory.
type Identity struct {
	UserID        string
	DisplayName   string
	UsernameLower string
}
