package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-hub/internal/models"
)

type ConnectionRepositoryMock struct {
	mock.Mock
}

func (m *ConnectionRepositoryMock) Register(ctx context.Context, conn models.Connection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *ConnectionRepositoryMock) SetConversation(ctx context.Context, handle, conversationID string, expiresAt time.Time) error {
	args := m.Called(ctx, handle, conversationID, expiresAt)
	return args.Error(0)
}

func (m *ConnectionRepositoryMock) Touch(ctx context.Context, handle string, expiresAt time.Time) error {
	args := m.Called(ctx, handle, expiresAt)
	return args.Error(0)
}

func (m *ConnectionRepositoryMock) GetByHandle(ctx context.Context, handle string) (models.Connection, error) {
	args := m.Called(ctx, handle)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionRepositoryMock) ListHandlesByUser(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	var handles []string
	if val := args.Get(0); val != nil {
		handles = val.([]string)
	}
	return handles, args.Error(1)
}

func (m *ConnectionRepositoryMock) ListHandlesByConversation(ctx context.Context, conversationID string) ([]string, error) {
	args := m.Called(ctx, conversationID)
	var handles []string
	if val := args.Get(0); val != nil {
		handles = val.([]string)
	}
	return handles, args.Error(1)
}

func (m *ConnectionRepositoryMock) ListRefsByConversation(ctx context.Context, conversationID string) ([]models.ConnectionRef, error) {
	args := m.Called(ctx, conversationID)
	var refs []models.ConnectionRef
	if val := args.Get(0); val != nil {
		refs = val.([]models.ConnectionRef)
	}
	return refs, args.Error(1)
}

func (m *ConnectionRepositoryMock) ListRefsByUsers(ctx context.Context, userIDs []string) ([]models.ConnectionRef, error) {
	args := m.Called(ctx, userIDs)
	var refs []models.ConnectionRef
	if val := args.Get(0); val != nil {
		refs = val.([]models.ConnectionRef)
	}
	return refs, args.Error(1)
}

func (m *ConnectionRepositoryMock) Remove(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var created models.Message
	if val := args.Get(0); val != nil {
		created = val.(models.Message)
	}
	return created, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, conversationID string, createdAt int64) (models.Message, error) {
	args := m.Called(ctx, conversationID, createdAt)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) List(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, conversationID string, createdAt int64, senderID, text string, mediaPaths []string, editedAt int64) (models.Message, []string, error) {
	args := m.Called(ctx, conversationID, createdAt, senderID, text, mediaPaths, editedAt)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	var removed []string
	if val := args.Get(1); val != nil {
		removed = val.([]string)
	}
	return msg, removed, args.Error(2)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, conversationID string, createdAt int64, senderID string, deletedAt int64) (models.Message, []string, bool, error) {
	args := m.Called(ctx, conversationID, createdAt, senderID, deletedAt)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	var removed []string
	if val := args.Get(1); val != nil {
		removed = val.([]string)
	}
	return msg, removed, args.Bool(2), args.Error(3)
}

func (m *MessageRepositoryMock) React(ctx context.Context, conversationID string, createdAt int64, userID, displayName, emoji string, add bool) (models.Message, error) {
	args := m.Called(ctx, conversationID, createdAt, userID, displayName, emoji, add)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ArmExpiry(ctx context.Context, conversationID string, createdAt int64, readerID string, expiresAt int64) (bool, error) {
	args := m.Called(ctx, conversationID, createdAt, readerID, expiresAt)
	return args.Bool(0), args.Error(1)
}

type ReceiptRepositoryMock struct {
	mock.Mock
}

func (m *ReceiptRepositoryMock) Record(ctx context.Context, receipt models.ReadReceipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *ReceiptRepositoryMock) ListByConversation(ctx context.Context, conversationID string) ([]models.ReadReceipt, error) {
	args := m.Called(ctx, conversationID)
	var receipts []models.ReadReceipt
	if val := args.Get(0); val != nil {
		receipts = val.([]models.ReadReceipt)
	}
	return receipts, args.Error(1)
}

type UnreadRepositoryMock struct {
	mock.Mock
}

func (m *UnreadRepositoryMock) Upsert(ctx context.Context, counter models.UnreadCounter) error {
	args := m.Called(ctx, counter)
	return args.Error(0)
}

func (m *UnreadRepositoryMock) Clear(ctx context.Context, userID, conversationID string) error {
	args := m.Called(ctx, userID, conversationID)
	return args.Error(0)
}

func (m *UnreadRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.UnreadCounter, error) {
	args := m.Called(ctx, userID)
	var counters []models.UnreadCounter
	if val := args.Get(0); val != nil {
		counters = val.([]models.UnreadCounter)
	}
	return counters, args.Error(1)
}

type GroupDirectoryMock struct {
	mock.Mock
}

func (m *GroupDirectoryMock) GetActiveMembers(ctx context.Context, groupID string) ([]string, error) {
	args := m.Called(ctx, groupID)
	var members []string
	if val := args.Get(0); val != nil {
		members = val.([]string)
	}
	return members, args.Error(1)
}

func (m *GroupDirectoryMock) GetMembership(ctx context.Context, groupID, userID string) (models.Membership, error) {
	args := m.Called(ctx, groupID, userID)
	var membership models.Membership
	if val := args.Get(0); val != nil {
		membership = val.(models.Membership)
	}
	return membership, args.Error(1)
}

type BlocklistMock struct {
	mock.Mock
}

func (m *BlocklistMock) HasBlock(ctx context.Context, blockerID, blockedID string) (bool, error) {
	args := m.Called(ctx, blockerID, blockedID)
	return args.Bool(0), args.Error(1)
}

func (m *BlocklistMock) AnyBlockBetween(ctx context.Context, userA, userB string) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(token string) (models.Identity, error) {
	args := m.Called(token)
	var id models.Identity
	if val := args.Get(0); val != nil {
		id = val.(models.Identity)
	}
	return id, args.Error(1)
}

type PusherMock struct {
	mock.Mock
}

func (m *PusherMock) Push(handle string, event models.PushEvent) error {
	args := m.Called(handle, event)
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) NotifyPush(ctx context.Context, recipientID, senderDisplayName, conversationID, kind string) {
	m.Called(ctx, recipientID, senderDisplayName, conversationID, kind)
}

type AttachmentQueueMock struct {
	mock.Mock
}

func (m *AttachmentQueueMock) EnqueueDelete(ctx context.Context, keys []string, reason string, allowedPrefixes []string, contextID string) {
	m.Called(ctx, keys, reason, allowedPrefixes, contextID)
}
