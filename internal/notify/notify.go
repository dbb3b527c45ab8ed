package notify

import (
	"context"

	"go.uber.org/zap"

	"chat-hub/internal/observability"
	"chat-hub/internal/rabbitmq"
)

// Routing keys for background workers.
const (
	pushRoutingKey       = "notify.push"
	attachmentRoutingKey = "attachments.delete"
)

// Notifier hands a push notification to the offline-delivery worker.
// Best effort: failures are logged and dropped.
type Notifier interface {
	NotifyPush(ctx context.Context, recipientID, senderDisplayName, conversationID, kind string)
}

// AttachmentQueue hands freed object-storage keys to the asynchronous
// deletion worker.
type AttachmentQueue interface {
	EnqueueDelete(ctx context.Context, keys []string, reason string, allowedPrefixes []string, contextID string)
}

type pushTask struct {
	RecipientID    string         `json:"recipient_id"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Data           map[string]any `json:"data"`
	ConversationID string         `json:"conversation_id"`
}

type attachmentTask struct {
	Keys            []string `json:"keys"`
	Reason          string   `json:"reason"`
	AllowedPrefixes []string `json:"allowed_prefixes"`
	ContextID       string   `json:"context_id"`
}

// Service submits side-effect tasks to the queue.
type Service struct {
	publisher rabbitmq.Publisher
	logger    *zap.Logger
}

// NewService constructs a Service.
func NewService(publisher rabbitmq.Publisher, logger *zap.Logger) *Service {
	return &Service{publisher: publisher, logger: logger}
}

// NotifyPush enqueues a generic push notification. The title and body
// deliberately carry no message content: nothing readable lands on a
// lock screen.
func (s *Service) NotifyPush(ctx context.Context, recipientID, senderDisplayName, conversationID, kind string) {
	task := pushTask{
		RecipientID:    recipientID,
		Title:          "New message",
		Body:           "New message",
		ConversationID: conversationID,
		Data: map[string]any{
			"sender_display_name": senderDisplayName,
			"conversation_id":     conversationID,
			"kind":                kind,
		},
	}
	if err := s.publisher.Publish(ctx, pushRoutingKey, task); err != nil {
		observability.IncTaskPublishError(pushRoutingKey)
		s.logger.Warn("push notify enqueue failed", zap.String("recipient", recipientID), zap.Error(err))
	}
}

// EnqueueDelete submits object-storage keys for asynchronous deletion.
func (s *Service) EnqueueDelete(ctx context.Context, keys []string, reason string, allowedPrefixes []string, contextID string) {
	if len(keys) == 0 {
		return
	}
	task := attachmentTask{Keys: keys, Reason: reason, AllowedPrefixes: allowedPrefixes, ContextID: contextID}
	if err := s.publisher.Publish(ctx, attachmentRoutingKey, task); err != nil {
		observability.IncTaskPublishError(attachmentRoutingKey)
		s.logger.Warn("attachment delete enqueue failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}
