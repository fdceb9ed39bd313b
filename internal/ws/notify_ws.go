package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/auth"
	"messenger-service/internal/backplane"
	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
)

// NotifyWebSocketHandler handles the per-user notification socket. It is
// outbound only: inbound frames are drained and dropped.
type NotifyWebSocketHandler struct {
	hub      *Hub
	verifier *auth.Verifier
	tracker  *presence.Tracker
}

// NewNotifyWebSocketHandler constructs a NotifyWebSocketHandler.
func NewNotifyWebSocketHandler(hub *Hub, verifier *auth.Verifier, tracker *presence.Tracker) *NotifyWebSocketHandler {
	return &NotifyWebSocketHandler{hub: hub, verifier: verifier, tracker: tracker}
}

// Handle authenticates, upgrades, and parks the connection in the
// user's notification group until the client goes away.
func (h *NotifyWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := identityFromRequest(c, h.verifier)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		Username:    identity.Username,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	group := backplane.UserGroup(identity.UserID)
	cl, err := h.hub.Join(group, conn, info)
	if err != nil {
		conn.Close()
		return
	}

	observability.IncWSActive("user")
	observability.IncWSEvent("user", "ws_connect")
	h.tracker.ConnOpened(ctx, identity.UserID, identity.Username)

	go func() {
		loopCtx := context.Background()
		defer func() {
			h.hub.Leave(group, cl)
			observability.DecWSActive("user")
			observability.IncWSEvent("user", "ws_disconnect")
			h.tracker.ConnClosed(loopCtx, identity.UserID, identity.Username)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("user", "ws_error")
				}
				return
			}
		}
	}()
}
