package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS connections (
            handle TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            display_name TEXT NOT NULL,
            username_lower TEXT NOT NULL,
            conversation_id TEXT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS connections_user_idx ON connections (user_id);`,
		`CREATE INDEX IF NOT EXISTS connections_conversation_idx ON connections (conversation_id);`,
		`CREATE TABLE IF NOT EXISTS messages (
            conversation_id TEXT NOT NULL,
            created_at BIGINT NOT NULL,
            message_id TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            sender_display_name TEXT NOT NULL,
            kind TEXT NOT NULL DEFAULT 'user',
            text TEXT,
            media_paths TEXT[] NOT NULL DEFAULT '{}',
            ttl_seconds BIGINT,
            expires_at BIGINT,
            edited_at BIGINT,
            deleted_at BIGINT,
            deleted_by_sub TEXT,
            reactions JSONB NOT NULL DEFAULT '{}',
            reaction_users JSONB NOT NULL DEFAULT '{}',
            PRIMARY KEY (conversation_id, created_at)
        );`,
		`CREATE TABLE IF NOT EXISTS read_receipts (
            conversation_id TEXT NOT NULL,
            reader_id TEXT NOT NULL,
            message_created_at BIGINT NOT NULL,
            read_at BIGINT NOT NULL,
            PRIMARY KEY (conversation_id, reader_id, message_created_at)
        );`,
		`CREATE TABLE IF NOT EXISTS unread_counters (
            user_id TEXT NOT NULL,
            conversation_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            sender_display_name TEXT NOT NULL,
            last_message_created_at BIGINT NOT NULL,
            message_count INT NOT NULL DEFAULT 0,
            PRIMARY KEY (user_id, conversation_id)
        );`,
		`CREATE TABLE IF NOT EXISTS group_members (
            group_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'active',
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            PRIMARY KEY (group_id, user_id)
        );`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
