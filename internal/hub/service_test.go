package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-hub/internal/mocks"
	"chat-hub/internal/models"
	"chat-hub/internal/repositories"
)

const testNowMillis = int64(1_700_000_000_000)

type serviceFixture struct {
	connections *mocks.ConnectionRepositoryMock
	messages    *mocks.MessageRepositoryMock
	receipts    *mocks.ReceiptRepositoryMock
	unreads     *mocks.UnreadRepositoryMock
	groups      *mocks.GroupDirectoryMock
	blocks      *mocks.BlocklistMock
	gateway     *mocks.PusherMock
	notifier    *mocks.NotifierMock
	attachments *mocks.AttachmentQueueMock
	service     *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		connections: &mocks.ConnectionRepositoryMock{},
		messages:    &mocks.MessageRepositoryMock{},
		receipts:    &mocks.ReceiptRepositoryMock{},
		unreads:     &mocks.UnreadRepositoryMock{},
		groups:      &mocks.GroupDirectoryMock{},
		blocks:      &mocks.BlocklistMock{},
		gateway:     &mocks.PusherMock{},
		notifier:    &mocks.NotifierMock{},
		attachments: &mocks.AttachmentQueueMock{},
	}
	logger := zap.NewNop()
	router := NewRouter(f.connections, f.groups, f.blocks)
	coordinator := NewUnreadCoordinator(f.connections, f.unreads, f.notifier, logger)
	f.service = NewService(ServiceDeps{
		Logger:      logger,
		Connections: f.connections,
		Messages:    f.messages,
		Receipts:    f.receipts,
		Groups:      f.groups,
		Router:      router,
		Gateway:     f.gateway,
		Coordinator: coordinator,
		Attachments: f.attachments,
		ConnTTL:     time.Hour,
		MediaRoots:  []string{"media/"},
		Now:         func() time.Time { return time.UnixMilli(testNowMillis) },
	})
	return f
}

func (f *serviceFixture) withConnection(handle, userID, displayName, conversationID string) {
	f.connections.On("GetByHandle", mock.Anything, handle).Return(models.Connection{
		Handle:         handle,
		UserID:         userID,
		DisplayName:    displayName,
		UsernameLower:  displayName,
		ConversationID: conversationID,
	}, nil)
	f.connections.On("Touch", mock.Anything, handle, mock.Anything).Return(nil)
}

func TestHandleEventUnknownConnection(t *testing.T) {
	f := newServiceFixture()
	f.connections.On("GetByHandle", mock.Anything, "ghost").Return(models.Connection{}, repositories.ErrConnectionNotFound)

	_, err := f.service.HandleEvent(context.Background(), "ghost", []byte(`{"action":"typing","conversation_id":"global","is_typing":true}`))

	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSendDirectMessage(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	refs := []models.ConnectionRef{{Handle: "h-alice", UserID: "alice"}, {Handle: "h-bob", UserID: "bob"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)
	f.messages.On("Create", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.ConversationID == "dm#alice#bob" &&
			msg.SenderID == "alice" &&
			msg.Kind == models.MessageKindUser &&
			msg.CreatedAt == testNowMillis &&
			msg.MessageID == "client-7"
	})).Return(models.Message{
		ConversationID: "dm#alice#bob",
		CreatedAt:      testNowMillis,
		MessageID:      "client-7",
		SenderID:       "alice",
	}, nil)
	f.gateway.On("Push", "h-alice", mock.Anything).Return(nil)
	f.gateway.On("Push", "h-bob", mock.Anything).Return(nil)
	f.unreads.On("Upsert", mock.Anything, mock.MatchedBy(func(c models.UnreadCounter) bool {
		return c.UserID == "bob" && c.ConversationID == "dm#alice#bob"
	})).Return(nil)
	f.connections.On("ListHandlesByUser", mock.Anything, "bob").Return([]string{"h-bob"}, nil)

	ack, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"message","conversation_id":"dm#alice#bob","text":"hi","client_message_id":"client-7"}`))

	require.NoError(t, err)
	require.NotNil(t, ack)
	assert.Equal(t, models.PushTypeAck, ack.Type)
	assert.Equal(t, "client-7", ack.MessageID)
	assert.Equal(t, testNowMillis, ack.MessageCreatedAt)
	f.gateway.AssertNumberOfCalls(t, "Push", 2)
	f.notifier.AssertNotCalled(t, "NotifyPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendBlockedDirectMessageSilentlyDropped(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(true, nil)

	ack, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"message","conversation_id":"dm#alice#bob","text":"hi"}`))

	// The sender sees a normal ack; nothing is stored or delivered.
	require.NoError(t, err)
	require.NotNil(t, ack)
	assert.Equal(t, models.PushTypeAck, ack.Type)
	assert.NotEmpty(t, ack.MessageID)
	assert.Equal(t, testNowMillis, ack.MessageCreatedAt)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "Push", mock.Anything, mock.Anything)
	f.unreads.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestSendGlobalSkipsUnreadCounters(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "global")
	refs := []models.ConnectionRef{
		{Handle: "h-alice", UserID: "alice"},
		{Handle: "h-carol", UserID: "carol"},
	}
	f.connections.On("ListRefsByConversation", mock.Anything, "global").Return(refs, nil)
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "carol").Return(false, nil)
	f.messages.On("Create", mock.Anything, mock.Anything).Return(models.Message{
		ConversationID: "global",
		CreatedAt:      testNowMillis,
		MessageID:      "m1",
		SenderID:       "alice",
	}, nil)
	f.gateway.On("Push", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"message","conversation_id":"global","text":"hello all"}`))

	require.NoError(t, err)
	f.gateway.AssertNumberOfCalls(t, "Push", 2)
	f.unreads.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "NotifyPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendGlobalExcludesBlockedUsers(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "global")
	refs := []models.ConnectionRef{
		{Handle: "h-alice", UserID: "alice"},
		{Handle: "h-carol", UserID: "carol"},
		{Handle: "h-mallory", UserID: "mallory"},
	}
	f.connections.On("ListRefsByConversation", mock.Anything, "global").Return(refs, nil)
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "carol").Return(false, nil)
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "mallory").Return(true, nil)
	f.messages.On("Create", mock.Anything, mock.Anything).Return(models.Message{
		ConversationID: "global",
		CreatedAt:      testNowMillis,
		MessageID:      "m1",
		SenderID:       "alice",
	}, nil)
	f.gateway.On("Push", "h-alice", mock.Anything).Return(nil)
	f.gateway.On("Push", "h-carol", mock.Anything).Return(nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"message","conversation_id":"global","text":"hello all"}`))

	require.NoError(t, err)
	f.gateway.AssertNotCalled(t, "Push", "h-mallory", mock.Anything)
}

func TestSendNotifiesOfflineRecipient(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	refs := []models.ConnectionRef{{Handle: "h-alice", UserID: "alice"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)
	f.messages.On("Create", mock.Anything, mock.Anything).Return(models.Message{
		ConversationID:    "dm#alice#bob",
		CreatedAt:         testNowMillis,
		MessageID:         "m1",
		SenderID:          "alice",
		SenderDisplayName: "Alice",
	}, nil)
	f.gateway.On("Push", "h-alice", mock.Anything).Return(nil)
	f.unreads.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	f.connections.On("ListHandlesByUser", mock.Anything, "bob").Return([]string{}, nil)
	f.notifier.On("NotifyPush", mock.Anything, "bob", "Alice", "dm#alice#bob", models.UnreadKindMessage).Return()

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"message","conversation_id":"dm#alice#bob","text":"hi"}`))

	require.NoError(t, err)
	f.notifier.AssertExpectations(t)
}

func TestSendMediaPathOutsideRootsRejected(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "global")

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"message","conversation_id":"global","media_paths":["/etc/passwd"]}`))

	require.ErrorIs(t, err, ErrInvalidInput)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendPrunesGoneConnections(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	refs := []models.ConnectionRef{{Handle: "h-alice", UserID: "alice"}, {Handle: "h-stale", UserID: "bob"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)
	f.messages.On("Create", mock.Anything, mock.Anything).Return(models.Message{
		ConversationID: "dm#alice#bob",
		CreatedAt:      testNowMillis,
		MessageID:      "m1",
		SenderID:       "alice",
	}, nil)
	f.gateway.On("Push", "h-alice", mock.Anything).Return(nil)
	f.gateway.On("Push", "h-stale", mock.Anything).Return(ErrConnectionGone)
	f.connections.On("Remove", mock.Anything, "h-stale").Return(nil)
	f.unreads.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	f.connections.On("ListHandlesByUser", mock.Anything, "bob").Return([]string{"h-stale"}, nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"message","conversation_id":"dm#alice#bob","text":"hi"}`))

	require.NoError(t, err)
	f.connections.AssertCalled(t, "Remove", mock.Anything, "h-stale")
}

func TestEditByNonSenderForbidden(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-bob", "bob", "Bob", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return([]models.ConnectionRef{}, nil)
	f.messages.On("Edit", mock.Anything, "dm#alice#bob", int64(100), "bob", "new text", mock.Anything, testNowMillis).
		Return(models.Message{}, nil, repositories.ErrNotSender)

	_, err := f.service.HandleEvent(context.Background(), "h-bob",
		[]byte(`{"action":"edit","conversation_id":"dm#alice#bob","message_created_at":100,"text":"new text"}`))

	require.ErrorIs(t, err, ErrForbidden)
	f.gateway.AssertNotCalled(t, "Push", mock.Anything, mock.Anything)
}

func TestEditBroadcastsAndReclaimsRemovedMedia(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	refs := []models.ConnectionRef{{Handle: "h-alice", UserID: "alice"}, {Handle: "h-bob", UserID: "bob"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)
	text := "updated"
	f.messages.On("Edit", mock.Anything, "dm#alice#bob", int64(100), "alice", "updated", mock.Anything, testNowMillis).
		Return(models.Message{
			ConversationID: "dm#alice#bob",
			CreatedAt:      100,
			Text:           &text,
		}, []string{"media/old.png"}, nil)
	f.attachments.On("EnqueueDelete", mock.Anything, []string{"media/old.png"}, "message edit", []string{"media/"}, "dm#alice#bob").Return()
	f.gateway.On("Push", mock.Anything, mock.MatchedBy(func(e models.PushEvent) bool {
		return e.Type == models.PushTypeEdit && e.MessageCreatedAt == 100 && e.EditedAt == testNowMillis
	})).Return(nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"edit","conversation_id":"dm#alice#bob","message_created_at":100,"text":"updated"}`))

	require.NoError(t, err)
	f.attachments.AssertExpectations(t)
	f.gateway.AssertNumberOfCalls(t, "Push", 2)
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	refs := []models.ConnectionRef{{Handle: "h-bob", UserID: "bob"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)

	t.Run("first delete broadcasts", func(t *testing.T) {
		f.messages.On("SoftDelete", mock.Anything, "dm#alice#bob", int64(100), "alice", testNowMillis).
			Return(models.Message{ConversationID: "dm#alice#bob", CreatedAt: 100}, []string{"media/a.png"}, true, nil).Once()
		f.attachments.On("EnqueueDelete", mock.Anything, []string{"media/a.png"}, "message delete", []string{"media/"}, "dm#alice#bob").Return().Once()
		f.gateway.On("Push", "h-bob", mock.MatchedBy(func(e models.PushEvent) bool {
			return e.Type == models.PushTypeDelete && e.DeletedBySub == "alice"
		})).Return(nil).Once()

		_, err := f.service.HandleEvent(context.Background(), "h-alice",
			[]byte(`{"action":"delete","conversation_id":"dm#alice#bob","message_created_at":100}`))

		require.NoError(t, err)
		f.gateway.AssertNumberOfCalls(t, "Push", 1)
	})

	t.Run("repeat delete is a silent no-op", func(t *testing.T) {
		f.messages.On("SoftDelete", mock.Anything, "dm#alice#bob", int64(100), "alice", testNowMillis).
			Return(models.Message{ConversationID: "dm#alice#bob", CreatedAt: 100}, nil, false, nil).Once()

		_, err := f.service.HandleEvent(context.Background(), "h-alice",
			[]byte(`{"action":"delete","conversation_id":"dm#alice#bob","message_created_at":100}`))

		require.NoError(t, err)
		f.gateway.AssertNumberOfCalls(t, "Push", 1)
		f.attachments.AssertNumberOfCalls(t, "EnqueueDelete", 1)
	})
}

func TestReactBroadcastsRecomputedState(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	refs := []models.ConnectionRef{{Handle: "h-bob", UserID: "bob"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)
	reactions := models.ReactionMap{"👍": {"alice"}}
	users := models.ReactionUsers{"alice": "Alice"}
	f.messages.On("React", mock.Anything, "dm#alice#bob", int64(100), "alice", "Alice", "👍", true).
		Return(models.Message{ConversationID: "dm#alice#bob", CreatedAt: 100, Reactions: reactions, ReactionUsers: users}, nil)
	f.gateway.On("Push", "h-bob", mock.MatchedBy(func(e models.PushEvent) bool {
		return e.Type == models.PushTypeReaction &&
			len(e.Reactions["👍"]) == 1 &&
			e.ReactionUsers["alice"] == "Alice"
	})).Return(nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"react","conversation_id":"dm#alice#bob","message_created_at":100,"emoji":"👍","op":"add"}`))

	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
}

func TestReadGlobalRejected(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "global")

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"read","conversation_id":"global","message_created_at":100}`))

	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestReadArmsExpiryOnce(t *testing.T) {
	ttl := int64(30)
	readAt := testNowMillis / 1000

	setup := func() *serviceFixture {
		f := newServiceFixture()
		f.withConnection("h-bob", "bob", "Bob", "dm#alice#bob")
		f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
		refs := []models.ConnectionRef{{Handle: "h-alice", UserID: "alice"}, {Handle: "h-bob", UserID: "bob"}}
		f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)
		f.receipts.On("Record", mock.Anything, mock.Anything).Return(nil)
		f.unreads.On("Clear", mock.Anything, "bob", "dm#alice#bob").Return(nil)
		f.gateway.On("Push", mock.Anything, mock.Anything).Return(nil)
		return f
	}

	t.Run("first qualifying read arms the timer", func(t *testing.T) {
		f := setup()
		f.messages.On("Get", mock.Anything, "dm#alice#bob", int64(100)).Return(models.Message{
			ConversationID: "dm#alice#bob",
			CreatedAt:      100,
			SenderID:       "alice",
			TTLSeconds:     &ttl,
		}, nil)
		f.messages.On("ArmExpiry", mock.Anything, "dm#alice#bob", int64(100), "bob", readAt+ttl).Return(true, nil)

		_, err := f.service.HandleEvent(context.Background(), "h-bob",
			[]byte(`{"action":"read","conversation_id":"dm#alice#bob","message_created_at":100}`))

		require.NoError(t, err)
		f.messages.AssertCalled(t, "ArmExpiry", mock.Anything, "dm#alice#bob", int64(100), "bob", readAt+ttl)
		f.gateway.AssertCalled(t, "Push", "h-alice", mock.MatchedBy(func(e models.PushEvent) bool {
			return e.Type == models.PushTypeRead && e.ExpiresAt == readAt+ttl && e.ReaderID == "bob"
		}))
	})

	t.Run("later reads leave the timer alone", func(t *testing.T) {
		f := setup()
		armedAt := readAt - 10
		f.messages.On("Get", mock.Anything, "dm#alice#bob", int64(100)).Return(models.Message{
			ConversationID: "dm#alice#bob",
			CreatedAt:      100,
			SenderID:       "alice",
			TTLSeconds:     &ttl,
			ExpiresAt:      &armedAt,
		}, nil)

		_, err := f.service.HandleEvent(context.Background(), "h-bob",
			[]byte(`{"action":"read","conversation_id":"dm#alice#bob","message_created_at":100}`))

		require.NoError(t, err)
		f.messages.AssertNotCalled(t, "ArmExpiry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.gateway.AssertCalled(t, "Push", "h-alice", mock.MatchedBy(func(e models.PushEvent) bool {
			return e.Type == models.PushTypeRead && e.ExpiresAt == 0
		}))
	})

	t.Run("the sender's own read never arms", func(t *testing.T) {
		f := newServiceFixture()
		f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
		f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
		f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return([]models.ConnectionRef{}, nil)
		f.receipts.On("Record", mock.Anything, mock.Anything).Return(nil)
		f.unreads.On("Clear", mock.Anything, "alice", "dm#alice#bob").Return(nil)
		f.messages.On("Get", mock.Anything, "dm#alice#bob", int64(100)).Return(models.Message{
			ConversationID: "dm#alice#bob",
			CreatedAt:      100,
			SenderID:       "alice",
			TTLSeconds:     &ttl,
		}, nil)

		_, err := f.service.HandleEvent(context.Background(), "h-alice",
			[]byte(`{"action":"read","conversation_id":"dm#alice#bob","message_created_at":100}`))

		require.NoError(t, err)
		f.messages.AssertNotCalled(t, "ArmExpiry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTypingExcludesOrigin(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "dm#alice#bob")
	f.blocks.On("AnyBlockBetween", mock.Anything, "alice", "bob").Return(false, nil)
	refs := []models.ConnectionRef{{Handle: "h-alice", UserID: "alice"}, {Handle: "h-bob", UserID: "bob"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "bob"}).Return(refs, nil)
	f.gateway.On("Push", "h-bob", mock.MatchedBy(func(e models.PushEvent) bool {
		return e.Type == models.PushTypeTyping && e.IsTyping && e.SenderID == "alice"
	})).Return(nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"typing","conversation_id":"dm#alice#bob","is_typing":true}`))

	require.NoError(t, err)
	f.gateway.AssertNumberOfCalls(t, "Push", 1)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGroupSendExcludesFormerMembers(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "gdm#g1")
	f.groups.On("GetMembership", mock.Anything, "g1", "alice").Return(models.Membership{
		GroupID: "g1", UserID: "alice", Status: models.MembershipActive,
	}, nil)
	// bob left; the live roster no longer contains him.
	f.groups.On("GetActiveMembers", mock.Anything, "g1").Return([]string{"carol", "alice"}, nil)
	refs := []models.ConnectionRef{{Handle: "h-alice", UserID: "alice"}, {Handle: "h-carol", UserID: "carol"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "carol"}).Return(refs, nil)
	f.messages.On("Create", mock.Anything, mock.Anything).Return(models.Message{
		ConversationID: "gdm#g1",
		CreatedAt:      testNowMillis,
		MessageID:      "m1",
		SenderID:       "alice",
	}, nil)
	f.gateway.On("Push", mock.Anything, mock.Anything).Return(nil)
	f.unreads.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	f.connections.On("ListHandlesByUser", mock.Anything, "carol").Return([]string{"h-carol"}, nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"message","conversation_id":"gdm#g1","text":"hi"}`))

	require.NoError(t, err)
	f.gateway.AssertNotCalled(t, "Push", "h-bob", mock.Anything)
	f.unreads.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestGroupSendByLapsedMemberForbidden(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-bob", "bob", "Bob", "gdm#g1")
	f.groups.On("GetMembership", mock.Anything, "g1", "bob").Return(models.Membership{
		GroupID: "g1", UserID: "bob", Status: models.MembershipLeft,
	}, nil)

	_, err := f.service.HandleEvent(context.Background(), "h-bob",
		[]byte(`{"action":"message","conversation_id":"gdm#g1","text":"hi"}`))

	require.ErrorIs(t, err, ErrForbidden)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSystemMessageRequiresActiveAdmin(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-bob", "bob", "Bob", "gdm#g1")
	f.groups.On("GetMembership", mock.Anything, "g1", "bob").Return(models.Membership{
		GroupID: "g1", UserID: "bob", Status: models.MembershipActive, IsAdmin: false,
	}, nil)

	_, err := f.service.HandleEvent(context.Background(), "h-bob",
		[]byte(`{"action":"system","conversation_id":"gdm#g1","system_kind":"ban","target_sub":"carol"}`))

	require.ErrorIs(t, err, ErrForbidden)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSystemLeftAllowedForLapsedMember(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-bob", "bob", "Bob", "gdm#g1")
	f.groups.On("GetMembership", mock.Anything, "g1", "bob").Return(models.Membership{
		GroupID: "g1", UserID: "bob", Status: models.MembershipLeft,
	}, nil)
	f.groups.On("GetActiveMembers", mock.Anything, "g1").Return([]string{"alice", "carol"}, nil)
	refs := []models.ConnectionRef{{Handle: "h-alice", UserID: "alice"}}
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice", "carol"}).Return(refs, nil)
	f.messages.On("Create", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.Kind == models.MessageKindSystem && msg.Text != nil && *msg.Text == "Bob left the group"
	})).Return(models.Message{ConversationID: "gdm#g1", CreatedAt: testNowMillis, Kind: models.MessageKindSystem}, nil)
	f.gateway.On("Push", "h-alice", mock.MatchedBy(func(e models.PushEvent) bool {
		return e.Type == models.PushTypeSystem && e.SystemKind == SystemKindLeft
	})).Return(nil)

	_, err := f.service.HandleEvent(context.Background(), "h-bob",
		[]byte(`{"action":"system","conversation_id":"gdm#g1","system_kind":"left"}`))

	require.NoError(t, err)
	f.messages.AssertExpectations(t)
	f.gateway.AssertExpectations(t)
}

func TestKickPushesToTargetConnections(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "gdm#g1")
	f.groups.On("GetMembership", mock.Anything, "g1", "alice").Return(models.Membership{
		GroupID: "g1", UserID: "alice", Status: models.MembershipActive, IsAdmin: true,
	}, nil)
	f.connections.On("ListHandlesByUser", mock.Anything, "bob").Return([]string{"hb-1", "hb-2"}, nil)
	f.gateway.On("Push", "hb-1", mock.MatchedBy(func(e models.PushEvent) bool {
		return e.Type == models.PushTypeKicked && e.TargetSub == "bob"
	})).Return(nil)
	f.gateway.On("Push", "hb-2", mock.Anything).Return(ErrConnectionGone)
	f.connections.On("Remove", mock.Anything, "hb-2").Return(nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"kick","conversation_id":"gdm#g1","target_sub":"bob","suppress_system":true}`))

	require.NoError(t, err)
	f.gateway.AssertNumberOfCalls(t, "Push", 2)
	f.connections.AssertCalled(t, "Remove", mock.Anything, "hb-2")
	// suppress_system skips the audit message entirely.
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestJoinSwitchesRoom(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "global")
	f.groups.On("GetMembership", mock.Anything, "g1", "alice").Return(models.Membership{
		GroupID: "g1", UserID: "alice", Status: models.MembershipActive,
	}, nil)
	f.groups.On("GetActiveMembers", mock.Anything, "g1").Return([]string{"alice"}, nil)
	f.connections.On("ListRefsByUsers", mock.Anything, []string{"alice"}).Return([]models.ConnectionRef{}, nil)
	f.connections.On("SetConversation", mock.Anything, "h-alice", "gdm#g1", mock.Anything).Return(nil)

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"join","conversation_id":"gdm#g1"}`))

	require.NoError(t, err)
	f.connections.AssertCalled(t, "SetConversation", mock.Anything, "h-alice", "gdm#g1", mock.Anything)
}

func TestJoinUnknownConversationRejected(t *testing.T) {
	f := newServiceFixture()
	f.withConnection("h-alice", "alice", "Alice", "global")

	_, err := f.service.HandleEvent(context.Background(), "h-alice",
		[]byte(`{"action":"join","conversation_id":"lobby"}`))

	require.ErrorIs(t, err, ErrInvalidInput)
	f.connections.AssertNotCalled(t, "SetConversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
