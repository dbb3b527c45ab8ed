package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-hub/internal/hub"
	"chat-hub/internal/identity"
	"chat-hub/internal/models"
	"chat-hub/internal/observability"
)

// Handler owns the websocket endpoint: authenticate, upgrade, register
// the connection, then pump inbound events into the hub service until
// the socket closes.
type Handler struct {
	service  *hub.Service
	gateway  *hub.Gateway
	verifier identity.Verifier
	logger   *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *hub.Service, gateway *hub.Gateway, verifier identity.Verifier, logger *zap.Logger) *Handler {
	return &Handler{service: service, gateway: gateway, verifier: verifier, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs the read loop.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-hub/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := identity.FromAuthorizationHeader(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	id, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		Handle:      uuid.NewString(),
		UserID:      id.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	if err := h.service.Connect(ctx, info.Handle, id); err != nil {
		h.logger.Error("connection register failed", zap.String("user_id", id.UserID), zap.Error(err))
		conn.Close()
		return
	}
	h.gateway.Add(info.Handle, conn)
	observability.IncWSActive()
	h.logger.Info("ws connect",
		zap.String("handle", info.Handle),
		zap.String("user_id", info.UserID),
		zap.String("ip", info.IP),
		zap.String("request_id", info.RequestID),
		zap.String("trace_id", info.TraceID))

	go h.readLoop(conn, info)
}

func (h *Handler) readLoop(conn *websocket.Conn, info ConnInfo) {
	// The request context ends with the handshake; the connection
	// outlives it.
	ctx := context.Background()
	var closeReason string
	defer func() {
		h.gateway.Remove(info.Handle)
		h.service.Disconnect(ctx, info.Handle)
		observability.DecWSActive()
		h.logger.Info("ws disconnect",
			zap.String("handle", info.Handle),
			zap.String("user_id", info.UserID),
			zap.Duration("connected_for", time.Since(info.ConnectedAt)),
			zap.String("reason", closeReason))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("ws read error", zap.String("handle", info.Handle), zap.Error(err))
			}
			return
		}

		ack, err := h.service.HandleEvent(ctx, info.Handle, raw)
		if err != nil {
			h.pushError(info.Handle, err)
			continue
		}
		if ack != nil {
			if err := h.gateway.Push(info.Handle, *ack); err != nil {
				closeReason = "ack push failed"
				return
			}
		}
	}
}

// pushError reports a rejected event back on the originating socket
// only. A failed error push is ignored; the read loop will notice the
// dead socket on its own.
func (h *Handler) pushError(handle string, err error) {
	event := models.PushEvent{
		Type:  models.PushTypeError,
		Code:  hub.Code(err),
		Error: err.Error(),
	}
	if pushErr := h.gateway.Push(handle, event); pushErr != nil {
		h.logger.Debug("error push failed", zap.String("handle", handle), zap.Error(pushErr))
	}
}
