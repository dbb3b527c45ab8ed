package hub

import (
	"encoding/json"
	"fmt"
)

// Inbound actions.
const (
	ActionJoin    = "join"
	ActionMessage = "message"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionReact   = "react"
	ActionRead    = "read"
	ActionTyping  = "typing"
	ActionSystem  = "system"
	ActionKick    = "kick"
)

// Reaction operations.
const (
	ReactOpAdd    = "add"
	ReactOpRemove = "remove"
)

// maxEmojiBytes bounds a reaction emoji; grapheme clusters with skin
// tones and ZWJ sequences stay well under this.
const maxEmojiBytes = 64

// Event is the closed set of inbound wire events. The action field of
// the envelope selects the variant; dispatch is exhaustive.
type Event interface {
	Action() string
}

type JoinEvent struct {
	ConversationID string `json:"conversation_id"`
}

func (JoinEvent) Action() string { return ActionJoin }

type SendEvent struct {
	ConversationID  string   `json:"conversation_id"`
	Text            string   `json:"text"`
	TTLSeconds      *int64   `json:"ttl_seconds,omitempty"`
	MediaPaths      []string `json:"media_paths,omitempty"`
	ClientMessageID string   `json:"client_message_id,omitempty"`
}

func (SendEvent) Action() string { return ActionMessage }

// EditEvent carries the full post-edit content. MediaPaths is the
// complete replacement attachment set, not a delta: omitting the field
// strips every attachment from the message.
type EditEvent struct {
	ConversationID   string   `json:"conversation_id"`
	MessageCreatedAt int64    `json:"message_created_at"`
	Text             string   `json:"text"`
	MediaPaths       []string `json:"media_paths,omitempty"`
}

func (EditEvent) Action() string { return ActionEdit }

type DeleteEvent struct {
	ConversationID   string `json:"conversation_id"`
	MessageCreatedAt int64  `json:"message_created_at"`
}

func (DeleteEvent) Action() string { return ActionDelete }

type ReactEvent struct {
	ConversationID   string `json:"conversation_id"`
	MessageCreatedAt int64  `json:"message_created_at"`
	Emoji            string `json:"emoji"`
	Op               string `json:"op"`
}

func (ReactEvent) Action() string { return ActionReact }

type ReadEvent struct {
	ConversationID   string `json:"conversation_id"`
	MessageCreatedAt int64  `json:"message_created_at"`
	ReadAt           int64  `json:"read_at,omitempty"`
}

func (ReadEvent) Action() string { return ActionRead }

type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

func (TypingEvent) Action() string { return ActionTyping }

type SystemEvent struct {
	ConversationID string `json:"conversation_id"`
	SystemKind     string `json:"system_kind"`
	TargetSub      string `json:"target_sub,omitempty"`
	Text           string `json:"text,omitempty"`
}

func (SystemEvent) Action() string { return ActionSystem }

type KickEvent struct {
	ConversationID string `json:"conversation_id"`
	TargetSub      string `json:"target_sub"`
	SuppressSystem bool   `json:"suppress_system,omitempty"`
}

func (KickEvent) Action() string { return ActionKick }

type envelope struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
}

// DecodeEvent parses one inbound wire message into its typed event.
func DecodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed event: %v", ErrInvalidInput, err)
	}
	if env.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidInput)
	}

	switch env.Action {
	case ActionJoin:
		var e JoinEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		return e, nil
	case ActionMessage:
		var e SendEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		if e.Text == "" && len(e.MediaPaths) == 0 {
			return nil, fmt.Errorf("%w: message needs text or media", ErrInvalidInput)
		}
		if e.TTLSeconds != nil && *e.TTLSeconds <= 0 {
			return nil, fmt.Errorf("%w: ttl_seconds must be positive", ErrInvalidInput)
		}
		return e, nil
	case ActionEdit:
		var e EditEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		if e.MessageCreatedAt == 0 {
			return nil, fmt.Errorf("%w: message_created_at is required", ErrInvalidInput)
		}
		if e.Text == "" && len(e.MediaPaths) == 0 {
			return nil, fmt.Errorf("%w: edit needs text or media", ErrInvalidInput)
		}
		return e, nil
	case ActionDelete:
		var e DeleteEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		if e.MessageCreatedAt == 0 {
			return nil, fmt.Errorf("%w: message_created_at is required", ErrInvalidInput)
		}
		return e, nil
	case ActionReact:
		var e ReactEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		if e.MessageCreatedAt == 0 {
			return nil, fmt.Errorf("%w: message_created_at is required", ErrInvalidInput)
		}
		if e.Emoji == "" || len(e.Emoji) > maxEmojiBytes {
			return nil, fmt.Errorf("%w: emoji missing or oversized", ErrInvalidInput)
		}
		if e.Op != ReactOpAdd && e.Op != ReactOpRemove {
			return nil, fmt.Errorf("%w: op must be add or remove", ErrInvalidInput)
		}
		return e, nil
	case ActionRead:
		var e ReadEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		if e.MessageCreatedAt == 0 {
			return nil, fmt.Errorf("%w: message_created_at is required", ErrInvalidInput)
		}
		return e, nil
	case ActionTyping:
		var e TypingEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		return e, nil
	case ActionSystem:
		var e SystemEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		if e.SystemKind == "" {
			return nil, fmt.Errorf("%w: system_kind is required", ErrInvalidInput)
		}
		return e, nil
	case ActionKick:
		var e KickEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, malformed(env.Action, err)
		}
		if e.TargetSub == "" {
			return nil, fmt.Errorf("%w: target_sub is required", ErrInvalidInput)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, env.Action)
	}
}

func malformed(action string, err error) error {
	return fmt.Errorf("%w: malformed %s event: %v", ErrInvalidInput, action, err)
}
