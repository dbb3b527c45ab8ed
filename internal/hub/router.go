package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"chat-hub/internal/blocklist"
	"chat-hub/internal/models"
	"chat-hub/internal/repositories"
)

// Conversation kinds and id prefixes.
const (
	GlobalConversationID = "global"

	KindGlobal = "global"
	KindDirect = "direct"
	KindGroup  = "group"

	directPrefix = "dm#"
	groupPrefix  = "gdm#"
)

// DirectConversationID derives the canonical dm id for two users. The
// id is a pure function of the pair, so either client derives the same
// one.
func DirectConversationID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return directPrefix + userA + "#" + userB
}

// ParseDirectID splits a dm conversation id into its two participants.
func ParseDirectID(conversationID string) (string, string, error) {
	if !strings.HasPrefix(conversationID, directPrefix) {
		return "", "", fmt.Errorf("%w: malformed direct conversation id %q", ErrInvalidInput, conversationID)
	}
	parts := strings.Split(strings.TrimPrefix(conversationID, directPrefix), "#")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] >= parts[1] {
		return "", "", fmt.Errorf("%w: malformed direct conversation id %q", ErrInvalidInput, conversationID)
	}
	return parts[0], parts[1], nil
}

// Route is the resolved recipient set for one inbound event.
type Route struct {
	Kind string
	// Recipients are the live connections the event fans out to.
	Recipients []models.ConnectionRef
	// RecipientUsers are the distinct users the event is intended for,
	// live or not; drives unread counters and offline notification.
	// Empty for the global room.
	RecipientUsers []string
	// Blocked marks a direct conversation with a block in either
	// direction: the send is accepted but silently dropped.
	Blocked bool
}

// Router resolves conversation ids into recipient sets and enforces
// sender eligibility at delivery time, not connection time.
type Router struct {
	connections repositories.ConnectionRepository
	groups      repositories.GroupDirectory
	blocks      blocklist.Store
}

// NewRouter constructs a Router.
func NewRouter(connections repositories.ConnectionRepository, groups repositories.GroupDirectory, blocks blocklist.Store) *Router {
	return &Router{connections: connections, groups: groups, blocks: blocks}
}

// Resolve produces the recipient set for senderID acting on
// conversationID. forRead relaxes group eligibility so a just-departed
// member can still flush a final receipt.
func (r *Router) Resolve(ctx context.Context, conversationID, senderID string, forRead bool) (Route, error) {
	switch {
	case conversationID == GlobalConversationID:
		return r.resolveGlobal(ctx, senderID)
	case strings.HasPrefix(conversationID, directPrefix):
		return r.resolveDirect(ctx, conversationID, senderID)
	case strings.HasPrefix(conversationID, groupPrefix):
		return r.resolveGroup(ctx, conversationID, senderID, forRead)
	default:
		return Route{}, fmt.Errorf("%w: unknown conversation id %q", ErrInvalidInput, conversationID)
	}
}

// resolveGlobal returns every connection joined to the global room,
// minus those whose owner has a block relationship with the sender in
// either direction. Block lookups run once per distinct user, not per
// connection.
func (r *Router) resolveGlobal(ctx context.Context, senderID string) (Route, error) {
	refs, err := r.connections.ListRefsByConversation(ctx, GlobalConversationID)
	if err != nil {
		return Route{}, fmt.Errorf("list global connections: %w", err)
	}

	allowed := map[string]bool{senderID: true}
	recipients := make([]models.ConnectionRef, 0, len(refs))
	for _, ref := range refs {
		verdict, seen := allowed[ref.UserID]
		if !seen {
			blocked, err := r.blocks.AnyBlockBetween(ctx, senderID, ref.UserID)
			if err != nil {
				return Route{}, fmt.Errorf("blocklist lookup: %w", err)
			}
			verdict = !blocked
			allowed[ref.UserID] = verdict
		}
		if verdict {
			recipients = append(recipients, ref)
		}
	}
	return Route{Kind: KindGlobal, Recipients: recipients}, nil
}

func (r *Router) resolveDirect(ctx context.Context, conversationID, senderID string) (Route, error) {
	userA, userB, err := ParseDirectID(conversationID)
	if err != nil {
		return Route{}, err
	}
	if senderID != userA && senderID != userB {
		return Route{}, fmt.Errorf("%w: sender is not a participant of %q", ErrInvalidInput, conversationID)
	}

	blocked, err := r.blocks.AnyBlockBetween(ctx, userA, userB)
	if err != nil {
		return Route{}, fmt.Errorf("blocklist lookup: %w", err)
	}
	if blocked {
		return Route{Kind: KindDirect, Blocked: true}, nil
	}

	recipients, err := r.connections.ListRefsByUsers(ctx, []string{userA, userB})
	if err != nil {
		return Route{}, fmt.Errorf("list participant connections: %w", err)
	}
	return Route{Kind: KindDirect, Recipients: recipients, RecipientUsers: []string{userA, userB}}, nil
}

// resolveGroup fetches the live roster at call time, never cached, so
// membership changes take effect on the very next message.
func (r *Router) resolveGroup(ctx context.Context, conversationID, senderID string, forRead bool) (Route, error) {
	groupID := strings.TrimPrefix(conversationID, groupPrefix)
	if groupID == "" {
		return Route{}, fmt.Errorf("%w: malformed group conversation id %q", ErrInvalidInput, conversationID)
	}

	membership, err := r.groups.GetMembership(ctx, groupID, senderID)
	if errors.Is(err, repositories.ErrMembershipNotFound) {
		return Route{}, fmt.Errorf("%w: not a member of group %s", ErrForbidden, groupID)
	}
	if err != nil {
		return Route{}, fmt.Errorf("group membership lookup: %w", err)
	}
	if !membership.Active() && !forRead {
		return Route{}, fmt.Errorf("%w: membership in group %s is %s", ErrForbidden, groupID, membership.Status)
	}

	members, err := r.groups.GetActiveMembers(ctx, groupID)
	if err != nil {
		return Route{}, fmt.Errorf("group roster lookup: %w", err)
	}
	sort.Strings(members)

	recipients, err := r.connections.ListRefsByUsers(ctx, members)
	if err != nil {
		return Route{}, fmt.Errorf("list member connections: %w", err)
	}
	return Route{Kind: KindGroup, Recipients: recipients, RecipientUsers: members}, nil
}

// GroupID extracts the group id from a group conversation id.
func GroupID(conversationID string) string {
	return strings.TrimPrefix(conversationID, groupPrefix)
}

// IsGroup reports whether the conversation id names a group.
func IsGroup(conversationID string) bool {
	return strings.HasPrefix(conversationID, groupPrefix)
}
