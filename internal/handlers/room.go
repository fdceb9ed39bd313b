package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/events"
	"messenger-service/internal/models"
	"messenger-service/internal/notify"
	"messenger-service/internal/pipeline"
	"messenger-service/internal/presence"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

// RoomHandler manages room lifecycle and membership endpoints.
type RoomHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	reads    repositories.ReadStatusRepository
	friends  repositories.FriendRepository
	pipe     *pipeline.Pipeline
	router   *notify.Router
	tracker  *presence.Tracker
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, reads repositories.ReadStatusRepository, friends repositories.FriendRepository, pipe *pipeline.Pipeline, router *notify.Router, tracker *presence.Tracker, hub *ws.Hub, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{
		rooms:    rooms,
		messages: messages,
		reads:    reads,
		friends:  friends,
		pipe:     pipe,
		router:   router,
		tracker:  tracker,
		hub:      hub,
		audit:    audit,
	}
}

// StartPrivateChat returns the caller's private room with a friend,
// creating it on first contact.
func (h *RoomHandler) StartPrivateChat(c *gin.Context) {
	var req struct {
		FriendID int `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if userID == req.FriendID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	friends, err := h.friends.AreFriends(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate friendship"})
		return
	}
	if !friends {
		c.JSON(http.StatusForbidden, gin.H{"error": "users are not friends"})
		return
	}

	room, created, err := h.rooms.GetOrCreatePrivate(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}
	if created {
		h.tracker.InvalidateUsers([]int{userID, req.FriendID})
		h.emitAudit(c, "INFO", "Private room created")
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, room)
}

// ListRooms returns the sidebar summaries for the caller: display name,
// unread count, last message, and presence for private rooms.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt("userID")

	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}

	unreads, err := h.reads.UnreadByRoom(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread counts"})
		return
	}
	unreadByRoom := make(map[int]int, len(unreads))
	for _, u := range unreads {
		unreadByRoom[u.RoomID] = u.Count
	}

	summaries := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary := models.RoomSummary{
			RoomID:      room.ID,
			RoomUID:     room.RoomUID,
			Kind:        room.Kind,
			DisplayName: room.Name,
			UnreadCount: unreadByRoom[room.ID],
			CreatedAt:   room.CreatedAt,
		}
		if !room.IsGroup() {
			memberIDs, err := h.rooms.MemberIDs(c.Request.Context(), room.ID)
			if err == nil {
				for _, id := range memberIDs {
					if id != userID {
						other := id
						summary.OtherUserID = &other
						summary.IsOnline = h.tracker.IsOnline(c.Request.Context(), other)
					}
				}
			}
		}
		last, err := h.messages.LastMessage(c.Request.Context(), room.ID)
		if err == nil {
			summary.LastMessage = last
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{"rooms": summaries})
}

// CreateGroup creates a group room with the caller as admin.
func (h *RoomHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := identityFromContext(c)
	room, err := h.rooms.CreateGroup(c.Request.Context(), identity.UserID, req.Name, req.MemberIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	memberIDs, err := h.rooms.MemberIDs(c.Request.Context(), room.ID)
	if err == nil {
		h.tracker.InvalidateUsers(memberIDs)
		h.router.GroupCreated(c.Request.Context(), memberIDs, &room, identity.Username)
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, room)
}

// AddMember adds a friend of the caller to a group room.
func (h *RoomHandler) AddMember(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}
	if !room.IsGroup() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a group room"})
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := identityFromContext(c)
	member, err := h.rooms.IsMember(c.Request.Context(), room.ID, identity.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	friends, err := h.friends.AreFriends(c.Request.Context(), identity.UserID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate friendship"})
		return
	}
	if !friends {
		c.JSON(http.StatusForbidden, gin.H{"error": "can only add your friends"})
		return
	}

	if err := h.rooms.AddMember(c.Request.Context(), room.ID, req.UserID); err != nil {
		if errors.Is(err, repositories.ErrAlreadyMember) {
			c.JSON(http.StatusConflict, gin.H{"error": "already a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}

	h.tracker.InvalidateUser(req.UserID)
	h.invalidateRoomMembers(c, room.ID)

	ev := events.NewGroupUpdate(events.GroupMemberAdded)
	ev.UserID = req.UserID
	ev.AddedBy = identity.UserID
	h.pipe.Broadcast(c.Request.Context(), room.ID, ev)
	_ = h.pipe.SubmitSystem(c.Request.Context(), room.ID, identity.Username+" added a new member")
	h.router.AddedToGroup(c.Request.Context(), req.UserID, &room, identity.Username)

	h.emitAudit(c, "INFO", "Group member added")
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

// KickMember removes a member from a group room. Admin only; the admin
// cannot kick themselves.
func (h *RoomHandler) KickMember(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	identity := identityFromContext(c)
	if !room.IsAdmin(identity.UserID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "admin rights required"})
		return
	}
	if userID == identity.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot kick yourself"})
		return
	}

	if err := h.rooms.KickMember(c.Request.Context(), room.ID, userID); err != nil {
		if errors.Is(err, repositories.ErrNotMember) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not kick member"})
		return
	}

	h.tracker.InvalidateUser(userID)
	h.invalidateRoomMembers(c, room.ID)

	ev := events.NewGroupUpdate(events.GroupMemberKicked)
	ev.UserID = userID
	h.pipe.Broadcast(c.Request.Context(), room.ID, ev)
	_ = h.pipe.SubmitSystem(c.Request.Context(), room.ID, "A member was removed by the admin")
	h.router.KickedFromGroup(c.Request.Context(), userID, &room)

	// The kicked user's open room sockets must not outlive membership.
	h.hub.CloseRoomUser(room.ID, userID)

	h.emitAudit(c, "INFO", "Group member kicked")
	c.JSON(http.StatusOK, gin.H{"status": "kicked"})
}

// LeaveGroup removes the caller from a group room. The last member out
// deletes the room; a departing admin hands the role to another member.
func (h *RoomHandler) LeaveGroup(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}
	// Private rooms always hold exactly two members; nobody leaves one.
	if !room.IsGroup() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a group room"})
		return
	}
	identity := identityFromContext(c)

	newAdminID, roomDeleted, err := h.rooms.LeaveGroup(c.Request.Context(), room.ID, identity.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		return
	}

	h.tracker.InvalidateUser(identity.UserID)
	if roomDeleted {
		h.emitAudit(c, "INFO", "Group deleted with last member")
		c.JSON(http.StatusOK, gin.H{"status": "left", "room_deleted": true})
		return
	}
	h.invalidateRoomMembers(c, room.ID)

	ev := events.NewGroupUpdate(events.GroupMemberLeft)
	ev.UserID = identity.UserID
	if newAdminID != nil {
		ev.NewAdminID = *newAdminID
	}
	h.pipe.Broadcast(c.Request.Context(), room.ID, ev)
	_ = h.pipe.SubmitSystem(c.Request.Context(), room.ID, identity.Username+" left the group")
	if newAdminID != nil {
		h.router.AdminTransferred(c.Request.Context(), *newAdminID, &room)
	}

	h.emitAudit(c, "INFO", "Group member left")
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// TransferAdmin hands the admin role to another member. Admin only.
func (h *RoomHandler) TransferAdmin(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := identityFromContext(c)
	if !room.IsAdmin(identity.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin rights required"})
		return
	}

	member, err := h.rooms.IsMember(c.Request.Context(), room.ID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new admin must be a member"})
		return
	}

	if err := h.rooms.TransferAdmin(c.Request.Context(), room.ID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not transfer admin"})
		return
	}

	ev := events.NewGroupUpdate(events.GroupAdminTransferred)
	ev.NewAdminID = req.UserID
	ev.OldAdminID = identity.UserID
	h.pipe.Broadcast(c.Request.Context(), room.ID, ev)
	h.router.AdminTransferred(c.Request.Context(), req.UserID, &room)

	h.emitAudit(c, "INFO", "Group admin transferred")
	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

// DeleteGroup soft-deletes a group room and its messages. Admin only.
// Members are notified before the room disappears so their clients can
// drop it from the sidebar.
func (h *RoomHandler) DeleteGroup(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}
	identity := identityFromContext(c)
	if !room.IsAdmin(identity.UserID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "admin rights required"})
		return
	}

	memberIDs, err := h.rooms.MemberIDs(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	h.router.GroupDeleted(c.Request.Context(), memberIDs, &room)

	if err := h.rooms.SoftDeleteRoom(c.Request.Context(), room.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
		return
	}
	h.tracker.InvalidateUsers(memberIDs)

	h.emitAudit(c, "INFO", "Group deleted")
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// MarkRead flips all of the caller's unread rows in a room.
func (h *RoomHandler) MarkRead(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}
	rows, err := h.pipe.MarkRead(c.Request.Context(), room, identityFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": rows})
}

func (h *RoomHandler) invalidateRoomMembers(c *gin.Context, roomID int) {
	memberIDs, err := h.rooms.MemberIDs(c.Request.Context(), roomID)
	if err != nil {
		return
	}
	h.tracker.InvalidateUsers(memberIDs)
}

func (h *RoomHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
