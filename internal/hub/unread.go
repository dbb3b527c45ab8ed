package hub

import (
	"context"

	"go.uber.org/zap"

	"chat-hub/internal/models"
	"chat-hub/internal/notify"
	"chat-hub/internal/repositories"
)

// UnreadCoordinator maintains per-recipient unread counters and
// triggers offline push notifications. Everything here is best effort:
// a failure is logged and dropped, never surfaced to the sender.
type UnreadCoordinator struct {
	connections repositories.ConnectionRepository
	unread      repositories.UnreadRepository
	notifier    notify.Notifier
	logger      *zap.Logger
}

// NewUnreadCoordinator constructs an UnreadCoordinator.
func NewUnreadCoordinator(connections repositories.ConnectionRepository, unread repositories.UnreadRepository, notifier notify.Notifier, logger *zap.Logger) *UnreadCoordinator {
	return &UnreadCoordinator{connections: connections, unread: unread, notifier: notifier, logger: logger}
}

// AfterSend refreshes each intended recipient's unread counter and
// last-message projection, and pushes an offline notification to any
// recipient with zero live connections. The global room carries no
// unread state and is never passed here.
func (c *UnreadCoordinator) AfterSend(ctx context.Context, msg models.Message, recipientUsers []string, kind string) {
	for _, userID := range recipientUsers {
		if userID == msg.SenderID {
			continue
		}

		counter := models.UnreadCounter{
			UserID:               userID,
			ConversationID:       msg.ConversationID,
			Kind:                 kind,
			SenderID:             msg.SenderID,
			SenderDisplayName:    msg.SenderDisplayName,
			LastMessageCreatedAt: msg.CreatedAt,
		}
		if err := c.unread.Upsert(ctx, counter); err != nil {
			c.logger.Warn("unread counter update failed",
				zap.String("user_id", userID),
				zap.String("conversation_id", msg.ConversationID),
				zap.Error(err))
		}

		handles, err := c.connections.ListHandlesByUser(ctx, userID)
		if err != nil {
			c.logger.Warn("offline check failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if len(handles) == 0 {
			c.notifier.NotifyPush(ctx, userID, msg.SenderDisplayName, msg.ConversationID, kind)
		}
	}
}

// OnRead clears the reader's counter for the conversation.
func (c *UnreadCoordinator) OnRead(ctx context.Context, readerID, conversationID string) {
	if err := c.unread.Clear(ctx, readerID, conversationID); err != nil {
		c.logger.Warn("unread counter clear failed",
			zap.String("user_id", readerID),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}
