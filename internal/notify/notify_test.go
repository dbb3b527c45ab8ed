package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"chat-hub/internal/mocks"
)

func TestNotifyPushCarriesNoContent(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	service := NewService(publisher, zap.NewNop())
	publisher.On("Publish", mock.Anything, "notify.push", mock.MatchedBy(func(v any) bool {
		task, ok := v.(pushTask)
		return ok &&
			task.RecipientID == "bob" &&
			task.Title == "New message" &&
			task.Body == "New message" &&
			task.Data["sender_display_name"] == "Alice"
	})).Return(nil)

	service.NotifyPush(context.Background(), "bob", "Alice", "dm#alice#bob", "message")

	publisher.AssertExpectations(t)
}

func TestNotifyPushSwallowsPublishFailure(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	service := NewService(publisher, zap.NewNop())
	publisher.On("Publish", mock.Anything, "notify.push", mock.Anything).Return(errors.New("broker down"))

	assert.NotPanics(t, func() {
		service.NotifyPush(context.Background(), "bob", "Alice", "dm#alice#bob", "message")
	})
}

func TestEnqueueDelete(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	service := NewService(publisher, zap.NewNop())
	publisher.On("Publish", mock.Anything, "attachments.delete", mock.MatchedBy(func(v any) bool {
		task, ok := v.(attachmentTask)
		return ok && len(task.Keys) == 2 && task.Reason == "message delete" && task.ContextID == "dm#a#b"
	})).Return(nil)

	service.EnqueueDelete(context.Background(), []string{"media/a.png", "media/b.png"}, "message delete", []string{"media/"}, "dm#a#b")

	publisher.AssertExpectations(t)
}

func TestEnqueueDeleteSkipsEmpty(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	service := NewService(publisher, zap.NewNop())

	service.EnqueueDelete(context.Background(), nil, "message edit", []string{"media/"}, "dm#a#b")

	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
