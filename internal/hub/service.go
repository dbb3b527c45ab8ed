package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-hub/internal/models"
	"chat-hub/internal/notify"
	"chat-hub/internal/observability"
	"chat-hub/internal/repositories"
	"chat-hub/internal/telemetry"
)

// System event kinds.
const (
	SystemKindBan     = "ban"
	SystemKindUnban   = "unban"
	SystemKindKick    = "kick"
	SystemKindLeft    = "left"
	SystemKindRemoved = "removed"
	SystemKindAdded   = "added"
	SystemKindUpdate  = "update"
)

var systemKinds = map[string]bool{
	SystemKindBan:     true,
	SystemKindUnban:   true,
	SystemKindKick:    true,
	SystemKindLeft:    true,
	SystemKindRemoved: true,
	SystemKindAdded:   true,
	SystemKindUpdate:  true,
}

// ServiceDeps bundles the collaborators of the hub service.
type ServiceDeps struct {
	Logger      *zap.Logger
	Connections repositories.ConnectionRepository
	Messages    repositories.MessageRepository
	Receipts    repositories.ReceiptRepository
	Groups      repositories.GroupDirectory
	Router      *Router
	Gateway     Pusher
	Coordinator *UnreadCoordinator
	Attachments notify.AttachmentQueue
	Audit       *telemetry.AuditEmitter
	ConnTTL     time.Duration
	MediaRoots  []string
	Now         func() time.Time
}

// Service runs the message lifecycle for every inbound event. Handlers
// are stateless; all coordination happens through conditional writes in
// the repositories, so any number of instances can run concurrently.
type Service struct {
	logger      *zap.Logger
	connections repositories.ConnectionRepository
	messages    repositories.MessageRepository
	receipts    repositories.ReceiptRepository
	groups      repositories.GroupDirectory
	router      *Router
	gateway     Pusher
	coordinator *UnreadCoordinator
	attachments notify.AttachmentQueue
	audit       *telemetry.AuditEmitter
	connTTL     time.Duration
	mediaRoots  []string
	now         func() time.Time
}

// NewService constructs a Service.
func NewService(deps ServiceDeps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		logger:      deps.Logger,
		connections: deps.Connections,
		messages:    deps.Messages,
		receipts:    deps.Receipts,
		groups:      deps.Groups,
		router:      deps.Router,
		gateway:     deps.Gateway,
		coordinator: deps.Coordinator,
		attachments: deps.Attachments,
		audit:       deps.Audit,
		connTTL:     deps.ConnTTL,
		mediaRoots:  deps.MediaRoots,
		now:         deps.Now,
	}
}

// Connect records a freshly authenticated connection in the directory,
// parked in the global room.
func (s *Service) Connect(ctx context.Context, handle string, id models.Identity) error {
	conn := models.Connection{
		Handle:         handle,
		UserID:         id.UserID,
		DisplayName:    id.DisplayName,
		UsernameLower:  id.UsernameLower,
		ConversationID: GlobalConversationID,
		ExpiresAt:      s.now().Add(s.connTTL),
	}
	if err := s.connections.Register(ctx, conn); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	return nil
}

// Disconnect removes the directory row. Best effort; a row missed here
// is pruned lazily on the next failed push.
func (s *Service) Disconnect(ctx context.Context, handle string) {
	if err := s.connections.Remove(ctx, handle); err != nil {
		s.logger.Warn("connection remove failed", zap.String("handle", handle), zap.Error(err))
	}
}

// HandleEvent decodes and runs one inbound wire event for a connection.
// The returned event, if any, is the ack for the originating socket.
func (s *Service) HandleEvent(ctx context.Context, handle string, raw []byte) (*models.PushEvent, error) {
	event, err := DecodeEvent(raw)
	if err != nil {
		observability.IncInboundEvent("unknown", Code(err))
		return nil, err
	}

	conn, err := s.connections.GetByHandle(ctx, handle)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		observability.IncInboundEvent(event.Action(), "unauthorized")
		return nil, fmt.Errorf("%w: no identity for connection", ErrUnauthorized)
	}
	if err != nil {
		observability.IncInboundEvent(event.Action(), "internal")
		return nil, fmt.Errorf("resolve connection: %w", err)
	}

	// Expiry refresh is best effort on any activity.
	if err := s.connections.Touch(ctx, handle, s.now().Add(s.connTTL)); err != nil {
		s.logger.Debug("connection touch failed", zap.String("handle", handle), zap.Error(err))
	}

	ack, err := s.dispatch(ctx, conn, event)
	if err != nil {
		observability.IncInboundEvent(event.Action(), Code(err))
		return nil, err
	}
	observability.IncInboundEvent(event.Action(), "ok")
	return ack, nil
}

func (s *Service) dispatch(ctx context.Context, conn models.Connection, event Event) (*models.PushEvent, error) {
	switch e := event.(type) {
	case JoinEvent:
		return nil, s.handleJoin(ctx, conn, e)
	case SendEvent:
		return s.handleSend(ctx, conn, e)
	case EditEvent:
		return nil, s.handleEdit(ctx, conn, e)
	case DeleteEvent:
		return nil, s.handleDelete(ctx, conn, e)
	case ReactEvent:
		return nil, s.handleReact(ctx, conn, e)
	case ReadEvent:
		return nil, s.handleRead(ctx, conn, e)
	case TypingEvent:
		return nil, s.handleTyping(ctx, conn, e)
	case SystemEvent:
		return nil, s.handleSystem(ctx, conn, e)
	case KickEvent:
		return nil, s.handleKick(ctx, conn, e)
	default:
		return nil, fmt.Errorf("%w: unhandled action %q", ErrInvalidInput, event.Action())
	}
}

// handleJoin moves the connection into another room after checking the
// sender could at least read it.
func (s *Service) handleJoin(ctx context.Context, conn models.Connection, e JoinEvent) error {
	if _, err := s.router.Resolve(ctx, e.ConversationID, conn.UserID, true); err != nil {
		return err
	}
	if err := s.connections.SetConversation(ctx, conn.Handle, e.ConversationID, s.now().Add(s.connTTL)); err != nil {
		if errors.Is(err, repositories.ErrConnectionNotFound) {
			return fmt.Errorf("%w: no identity for connection", ErrUnauthorized)
		}
		return fmt.Errorf("set conversation: %w", err)
	}
	return nil
}

// handleSend persists one message and broadcasts it. A blocked direct
// send is acknowledged like a success and dropped: blocking stays
// undiscoverable for the blocked party.
func (s *Service) handleSend(ctx context.Context, conn models.Connection, e SendEvent) (*models.PushEvent, error) {
	if err := s.checkMediaPaths(e.MediaPaths); err != nil {
		return nil, err
	}

	route, err := s.router.Resolve(ctx, e.ConversationID, conn.UserID, false)
	if err != nil {
		return nil, err
	}

	messageID := e.ClientMessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	createdAt := s.now().UnixMilli()

	if route.Blocked {
		return &models.PushEvent{
			Type:             models.PushTypeAck,
			ConversationID:   e.ConversationID,
			MessageID:        messageID,
			MessageCreatedAt: createdAt,
		}, nil
	}

	text := e.Text
	msg := models.Message{
		ConversationID:    e.ConversationID,
		CreatedAt:         createdAt,
		MessageID:         messageID,
		SenderID:          conn.UserID,
		SenderDisplayName: conn.DisplayName,
		Kind:              models.MessageKindUser,
		Text:              &text,
		MediaPaths:        e.MediaPaths,
		TTLSeconds:        e.TTLSeconds,
	}
	created, err := s.messages.Create(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	s.fanout(ctx, route.Recipients, models.PushEvent{
		Type:           models.PushTypeMessage,
		ConversationID: created.ConversationID,
		Message:        &created,
	}, "")

	if route.Kind != KindGlobal {
		s.coordinator.AfterSend(ctx, created, route.RecipientUsers, models.UnreadKindMessage)
	}

	return &models.PushEvent{
		Type:             models.PushTypeAck,
		ConversationID:   created.ConversationID,
		MessageID:        created.MessageID,
		MessageCreatedAt: created.CreatedAt,
	}, nil
}

func (s *Service) handleEdit(ctx context.Context, conn models.Connection, e EditEvent) error {
	if err := s.checkMediaPaths(e.MediaPaths); err != nil {
		return err
	}

	route, err := s.router.Resolve(ctx, e.ConversationID, conn.UserID, false)
	if err != nil {
		return err
	}

	editedAt := s.now().UnixMilli()
	updated, removed, err := s.messages.Edit(ctx, e.ConversationID, e.MessageCreatedAt, conn.UserID, e.Text, e.MediaPaths, editedAt)
	if err != nil {
		return mapMessageError(err)
	}

	s.attachments.EnqueueDelete(ctx, removed, "message edit", s.mediaRoots, e.ConversationID)

	s.fanout(ctx, route.Recipients, models.PushEvent{
		Type:             models.PushTypeEdit,
		ConversationID:   e.ConversationID,
		MessageCreatedAt: updated.CreatedAt,
		Text:             updated.Text,
		MediaPaths:       updated.MediaPaths,
		EditedAt:         editedAt,
	}, "")
	return nil
}

// handleDelete soft deletes: content goes, the audit trail stays. A
// repeat delete succeeds without mutating or re-broadcasting.
func (s *Service) handleDelete(ctx context.Context, conn models.Connection, e DeleteEvent) error {
	route, err := s.router.Resolve(ctx, e.ConversationID, conn.UserID, false)
	if err != nil {
		return err
	}

	deletedAt := s.now().UnixMilli()
	deleted, removed, first, err := s.messages.SoftDelete(ctx, e.ConversationID, e.MessageCreatedAt, conn.UserID, deletedAt)
	if err != nil {
		return mapMessageError(err)
	}
	if !first {
		return nil
	}

	s.attachments.EnqueueDelete(ctx, removed, "message delete", s.mediaRoots, e.ConversationID)

	s.fanout(ctx, route.Recipients, models.PushEvent{
		Type:             models.PushTypeDelete,
		ConversationID:   e.ConversationID,
		MessageCreatedAt: deleted.CreatedAt,
		DeletedAt:        deletedAt,
		DeletedBySub:     conn.UserID,
	}, "")
	return nil
}

func (s *Service) handleReact(ctx context.Context, conn models.Connection, e ReactEvent) error {
	route, err := s.router.Resolve(ctx, e.ConversationID, conn.UserID, false)
	if err != nil {
		return err
	}

	updated, err := s.messages.React(ctx, e.ConversationID, e.MessageCreatedAt, conn.UserID, conn.DisplayName, e.Emoji, e.Op == ReactOpAdd)
	if err != nil {
		return mapMessageError(err)
	}

	s.fanout(ctx, route.Recipients, models.PushEvent{
		Type:             models.PushTypeReaction,
		ConversationID:   e.ConversationID,
		MessageCreatedAt: updated.CreatedAt,
		Reactions:        updated.Reactions,
		ReactionUsers:    updated.ReactionUsers,
	}, "")
	return nil
}

// handleRead records the receipt, clears the reader's unread counter
// and, for a TTL message read by someone other than the sender, arms
// the self-destruct timer exactly once.
func (s *Service) handleRead(ctx context.Context, conn models.Connection, e ReadEvent) error {
	if e.ConversationID == GlobalConversationID {
		return fmt.Errorf("%w: the global room has no read receipts", ErrInvalidInput)
	}

	route, err := s.router.Resolve(ctx, e.ConversationID, conn.UserID, true)
	if err != nil {
		return err
	}

	msg, err := s.messages.Get(ctx, e.ConversationID, e.MessageCreatedAt)
	if err != nil {
		return mapMessageError(err)
	}

	readAt := e.ReadAt
	if readAt == 0 {
		readAt = s.now().Unix()
	}

	if err := s.receipts.Record(ctx, models.ReadReceipt{
		ConversationID:   e.ConversationID,
		ReaderID:         conn.UserID,
		MessageCreatedAt: e.MessageCreatedAt,
		ReadAt:           readAt,
	}); err != nil {
		return fmt.Errorf("record receipt: %w", err)
	}

	s.coordinator.OnRead(ctx, conn.UserID, e.ConversationID)

	var armedExpiry int64
	if msg.TTLSeconds != nil && msg.ExpiresAt == nil && msg.SenderID != conn.UserID {
		expiresAt := readAt + *msg.TTLSeconds
		armed, err := s.messages.ArmExpiry(ctx, e.ConversationID, e.MessageCreatedAt, conn.UserID, expiresAt)
		if err != nil {
			s.logger.Warn("ttl arm failed", zap.String("conversation_id", e.ConversationID), zap.Error(err))
		} else if armed {
			armedExpiry = expiresAt
		}
	}

	s.fanout(ctx, route.Recipients, models.PushEvent{
		Type:             models.PushTypeRead,
		ConversationID:   e.ConversationID,
		MessageCreatedAt: e.MessageCreatedAt,
		ReaderID:         conn.UserID,
		ReadAt:           readAt,
		ExpiresAt:        armedExpiry,
	}, "")
	return nil
}

// handleTyping is stateless: no persistence, no ack, fanout only,
// excluding the originating connection.
func (s *Service) handleTyping(ctx context.Context, conn models.Connection, e TypingEvent) error {
	route, err := s.router.Resolve(ctx, e.ConversationID, conn.UserID, false)
	if err != nil {
		return err
	}
	if route.Blocked {
		return nil
	}

	s.fanout(ctx, route.Recipients, models.PushEvent{
		Type:           models.PushTypeTyping,
		ConversationID: e.ConversationID,
		SenderID:       conn.UserID,
		SenderDisplay:  conn.DisplayName,
		IsTyping:       e.IsTyping,
	}, conn.Handle)
	return nil
}

func (s *Service) handleSystem(ctx context.Context, conn models.Connection, e SystemEvent) error {
	if !IsGroup(e.ConversationID) {
		return fmt.Errorf("%w: system events are group only", ErrInvalidInput)
	}
	if !systemKinds[e.SystemKind] {
		return fmt.Errorf("%w: unknown system kind %q", ErrInvalidInput, e.SystemKind)
	}
	if err := s.checkSystemPermission(ctx, e.ConversationID, conn.UserID, e.SystemKind); err != nil {
		return err
	}
	return s.emitSystemMessage(ctx, conn, e.ConversationID, e.SystemKind, e.TargetSub, e.Text)
}

// handleKick pushes a UI-eviction signal to the target's own live
// connections. Membership itself is changed elsewhere; this only stops
// the target's clients from lingering in the room.
func (s *Service) handleKick(ctx context.Context, conn models.Connection, e KickEvent) error {
	if !IsGroup(e.ConversationID) {
		return fmt.Errorf("%w: kick is group only", ErrInvalidInput)
	}
	if err := s.checkSystemPermission(ctx, e.ConversationID, conn.UserID, SystemKindKick); err != nil {
		return err
	}

	handles, err := s.connections.ListHandlesByUser(ctx, e.TargetSub)
	if err != nil {
		return fmt.Errorf("list target connections: %w", err)
	}
	kicked := models.PushEvent{
		Type:           models.PushTypeKicked,
		ConversationID: e.ConversationID,
		TargetSub:      e.TargetSub,
	}
	for _, handle := range handles {
		if err := s.gateway.Push(handle, kicked); err != nil {
			if errors.Is(err, ErrConnectionGone) {
				s.Disconnect(ctx, handle)
			} else {
				s.logger.Warn("kick push failed", zap.String("handle", handle), zap.Error(err))
			}
		}
	}

	if e.SuppressSystem {
		return nil
	}
	// The audit trail is best effort and never fails the kick.
	if err := s.emitSystemMessage(ctx, conn, e.ConversationID, SystemKindKick, e.TargetSub, ""); err != nil {
		s.logger.Warn("kick system message failed", zap.String("conversation_id", e.ConversationID), zap.Error(err))
	}
	return nil
}

// checkSystemPermission enforces the group admin rule: every system
// kind needs an active admin sender except "left", which any current or
// just-departed member may emit about themselves.
func (s *Service) checkSystemPermission(ctx context.Context, conversationID, senderID, kind string) error {
	membership, err := s.groups.GetMembership(ctx, GroupID(conversationID), senderID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return fmt.Errorf("%w: not a member of the group", ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("group membership lookup: %w", err)
	}
	if kind == SystemKindLeft {
		return nil
	}
	if !membership.Active() || !membership.IsAdmin {
		return fmt.Errorf("%w: %s requires an active admin", ErrForbidden, kind)
	}
	return nil
}

func (s *Service) emitSystemMessage(ctx context.Context, conn models.Connection, conversationID, kind, targetSub, text string) error {
	if text == "" {
		text = defaultSystemText(kind, conn.DisplayName, targetSub)
	}

	route, err := s.router.Resolve(ctx, conversationID, conn.UserID, true)
	if err != nil {
		return err
	}

	msg := models.Message{
		ConversationID:    conversationID,
		CreatedAt:         s.now().UnixMilli(),
		MessageID:         uuid.NewString(),
		SenderID:          conn.UserID,
		SenderDisplayName: conn.DisplayName,
		Kind:              models.MessageKindSystem,
		Text:              &text,
	}
	created, err := s.messages.Create(ctx, msg)
	if err != nil {
		return fmt.Errorf("persist system message: %w", err)
	}

	s.fanout(ctx, route.Recipients, models.PushEvent{
		Type:           models.PushTypeSystem,
		ConversationID: conversationID,
		Message:        &created,
		SystemKind:     kind,
		TargetSub:      targetSub,
	}, "")

	userID := conn.UserID
	s.audit.Emit(ctx, "INFO", fmt.Sprintf("group %s: %s", GroupID(conversationID), text), created.MessageID, &userID)
	return nil
}

func defaultSystemText(kind, actorName, targetSub string) string {
	switch kind {
	case SystemKindBan:
		return targetSub + " was banned"
	case SystemKindUnban:
		return targetSub + " was unbanned"
	case SystemKindKick, SystemKindRemoved:
		return targetSub + " was removed from the group"
	case SystemKindLeft:
		return actorName + " left the group"
	case SystemKindAdded:
		return targetSub + " was added to the group"
	default:
		return "Group info was updated"
	}
}

// fanout pushes one event to every resolved recipient. Each push is
// independent: a gone connection prunes its directory row, any other
// failure is logged and skipped, and nothing here aborts the caller.
func (s *Service) fanout(ctx context.Context, recipients []models.ConnectionRef, event models.PushEvent, excludeHandle string) {
	for _, ref := range recipients {
		if ref.Handle == excludeHandle {
			continue
		}
		err := s.gateway.Push(ref.Handle, event)
		switch {
		case err == nil:
			observability.IncFanoutPush("ok")
		case errors.Is(err, ErrConnectionGone):
			observability.IncFanoutPush("gone")
			if rmErr := s.connections.Remove(ctx, ref.Handle); rmErr != nil {
				s.logger.Warn("stale connection prune failed", zap.String("handle", ref.Handle), zap.Error(rmErr))
			}
		default:
			observability.IncFanoutPush("error")
			s.logger.Warn("push failed", zap.String("handle", ref.Handle), zap.Error(err))
		}
	}
}

func (s *Service) checkMediaPaths(paths []string) error {
	for _, p := range paths {
		ok := false
		for _, root := range s.mediaRoots {
			if strings.HasPrefix(p, root) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: media path %q outside allowed roots", ErrInvalidInput, p)
		}
	}
	return nil
}

func mapMessageError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrMessageNotFound):
		return fmt.Errorf("%w: message does not exist", ErrNotFound)
	case errors.Is(err, repositories.ErrNotSender):
		return fmt.Errorf("%w: only the original sender may do this", ErrForbidden)
	case errors.Is(err, repositories.ErrMessageDeleted):
		return fmt.Errorf("%w: message is deleted", ErrConflict)
	default:
		return err
	}
}
