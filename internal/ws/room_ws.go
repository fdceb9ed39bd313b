package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/auth"
	"messenger-service/internal/backplane"
	"messenger-service/internal/errs"
	"messenger-service/internal/events"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/pipeline"
	"messenger-service/internal/presence"
	"messenger-service/internal/repositories"
)

// RoomWebSocketHandler handles room websocket connections.
type RoomWebSocketHandler struct {
	hub      *Hub
	verifier *auth.Verifier
	rooms    repositories.RoomRepository
	pipe     *pipeline.Pipeline
	tracker  *presence.Tracker
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, verifier *auth.Verifier, rooms repositories.RoomRepository, pipe *pipeline.Pipeline, tracker *presence.Tracker) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, verifier: verifier, rooms: rooms, pipe: pipe, tracker: tracker}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, authorizes against room membership, upgrades,
// and runs the read loop until the client goes away.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := identityFromRequest(c, h.verifier)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	room, err := h.rooms.GetRoomByUID(c.Request.Context(), c.Param("room_uid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	member, err := h.rooms.IsMember(c.Request.Context(), room.ID, identity.UserID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for room"})
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

	roomGroup := backplane.RoomGroup(room.ID)
	userGroup := backplane.UserGroup(identity.UserID)
	roomClient, err := h.hub.Join(roomGroup, conn, info)
	if err != nil {
		conn.Close()
		return
	}
	userClient, err := h.hub.Join(userGroup, conn, info)
	if err != nil {
		h.hub.Leave(roomGroup, roomClient)
		conn.Close()
		return
	}

	observability.IncWSActive("room")
	observability.IncWSEvent("room", "ws_connect")
	h.tracker.ConnOpened(ctx, identity.UserID, identity.Username)
	h.pipe.Activity(ctx, room.ID, events.ActivityUserJoin, identity.Username)

	// The request context dies when this handler returns; the socket
	// outlives it.
	go h.readLoop(context.Background(), conn, room, identity, roomClient, userClient)
}

func (h *RoomWebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, room models.Room, identity auth.Identity, roomClient, userClient *client) {
	defer func() {
		h.hub.Leave(backplane.RoomGroup(room.ID), roomClient)
		h.hub.Leave(backplane.UserGroup(identity.UserID), userClient)
		observability.DecWSActive("room")
		observability.IncWSEvent("room", "ws_disconnect")
		h.pipe.Activity(ctx, room.ID, events.ActivityUserLeave, identity.Username)
		h.tracker.ConnClosed(ctx, identity.UserID, identity.Username)
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("room", "ws_error")
			}
			return
		}
		frame, err := events.ParseFrame(data)
		if err != nil {
			// Malformed frames never tear the socket down.
			log.Printf("ws: bad frame user=%d room=%d: %v", identity.UserID, room.ID, err)
			continue
		}
		switch frame.Type {
		case events.FrameMessage:
			if _, err := h.pipe.Submit(ctx, room, identity, frame.Message, frame.IsFile); err != nil {
				log.Printf("ws: submit user=%d room=%d: %v", identity.UserID, room.ID, err)
				reject(roomClient, err)
			}
			observability.IncWSEvent("room", "message")
		case events.FrameMessageRead:
			if _, err := h.pipe.MarkRead(ctx, room, identity); err != nil {
				log.Printf("ws: mark read user=%d room=%d: %v", identity.UserID, room.ID, err)
				reject(roomClient, err)
			}
			observability.IncWSEvent("room", "message_read")
		case events.FrameTyping:
			h.pipe.Typing(ctx, room.ID, identity.Username, frame.IsTyping)
			observability.IncWSEvent("room", "typing")
		}
	}
}

// reject reports a refused frame back to the connection that sent it.
func reject(cl *client, cause error) {
	payload, err := events.NewError(string(errs.CodeOf(cause)), cause.Error()).Encode()
	if err != nil {
		log.Printf("ws: encode rejection: %v", err)
		return
	}
	if err := cl.send(payload); err != nil {
		log.Printf("ws: write rejection conn=%s: %v", cl.info.ConnID, err)
	}
}

// identityFromRequest accepts the token from the Authorization header or,
// for browser websocket clients that cannot set headers, a query param.
func identityFromRequest(c *gin.Context, verifier *auth.Verifier) (auth.Identity, error) {
	token := c.GetHeader("Authorization")
	if len(token) > 7 && token[:7] == "Bearer " {
		token = token[7:]
	}
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return verifier.Verify(token)
}
