package hub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	t.Run("send", func(t *testing.T) {
		event, err := DecodeEvent([]byte(`{"action":"message","conversation_id":"global","text":"hi","ttl_seconds":30}`))
		require.NoError(t, err)
		send, ok := event.(SendEvent)
		require.True(t, ok)
		assert.Equal(t, "global", send.ConversationID)
		assert.Equal(t, "hi", send.Text)
		require.NotNil(t, send.TTLSeconds)
		assert.Equal(t, int64(30), *send.TTLSeconds)
	})

	t.Run("react", func(t *testing.T) {
		event, err := DecodeEvent([]byte(`{"action":"react","conversation_id":"dm#a#b","message_created_at":99,"emoji":"🔥","op":"remove"}`))
		require.NoError(t, err)
		react, ok := event.(ReactEvent)
		require.True(t, ok)
		assert.Equal(t, ReactOpRemove, react.Op)
		assert.Equal(t, int64(99), react.MessageCreatedAt)
	})

	t.Run("media only message is valid", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"action":"message","conversation_id":"global","media_paths":["media/a.png"]}`))
		require.NoError(t, err)
	})
}

func TestDecodeEventRejections(t *testing.T) {
	cases := map[string]string{
		"not json":               `{`,
		"missing conversation":   `{"action":"message","text":"hi"}`,
		"unknown action":         `{"action":"shrug","conversation_id":"global"}`,
		"empty message":          `{"action":"message","conversation_id":"global"}`,
		"non-positive ttl":       `{"action":"message","conversation_id":"global","text":"x","ttl_seconds":0}`,
		"edit without timestamp": `{"action":"edit","conversation_id":"global","text":"x"}`,
		"react without emoji":    `{"action":"react","conversation_id":"global","message_created_at":1,"op":"add"}`,
		"react with bad op":      `{"action":"react","conversation_id":"global","message_created_at":1,"emoji":"🔥","op":"toggle"}`,
		"oversized emoji":        `{"action":"react","conversation_id":"global","message_created_at":1,"emoji":"` + strings.Repeat("x", 65) + `","op":"add"}`,
		"system without kind":    `{"action":"system","conversation_id":"gdm#g1"}`,
		"kick without target":    `{"action":"kick","conversation_id":"gdm#g1"}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(raw))
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
