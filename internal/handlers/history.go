package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-hub/internal/hub"
	"chat-hub/internal/repositories"
)

// HistoryHandler serves conversation history over plain HTTP so clients
// can backfill before opening a socket.
type HistoryHandler struct {
	router   *hub.Router
	messages repositories.MessageRepository
	receipts repositories.ReceiptRepository
	unreads  repositories.UnreadRepository
	pageSize int
}

// NewHistoryHandler builds a HistoryHandler.
func NewHistoryHandler(router *hub.Router, messages repositories.MessageRepository, receipts repositories.ReceiptRepository, unreads repositories.UnreadRepository, pageSize int) *HistoryHandler {
	return &HistoryHandler{
		router:   router,
		messages: messages,
		receipts: receipts,
		unreads:  unreads,
		pageSize: pageSize,
	}
}

// ListMessages returns the most recent messages of a conversation in
// ascending order, with the conversation's read receipts alongside.
// Eligibility is the read rule: a member who already left a group can
// still fetch history, a non-member cannot.
func (h *HistoryHandler) ListMessages(c *gin.Context) {
	conversationID := c.Param("id")
	userID := c.GetString("userID")

	limit := h.pageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	if _, err := h.router.Resolve(c.Request.Context(), conversationID, userID, true); err != nil {
		c.JSON(hub.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	messages, err := h.messages.List(c.Request.Context(), conversationID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	receipts, err := h.receipts.ListByConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load receipts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"messages":        messages,
		"receipts":        receipts,
	})
}

// ListUnreads returns the caller's per-conversation unread counters.
func (h *HistoryHandler) ListUnreads(c *gin.Context) {
	userID := c.GetString("userID")

	counters, err := h.unreads.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unreads"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreads": counters})
}
