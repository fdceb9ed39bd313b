package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/blob"
	"messenger-service/internal/pipeline"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// historyPageSize is how many messages one history page holds.
const historyPageSize = 20

// MessageHandler manages message endpoints for a room.
type MessageHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	pipe     *pipeline.Pipeline
	store    blob.Store
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, pipe *pipeline.Pipeline, store blob.Store, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		rooms:    rooms,
		messages: messages,
		pipe:     pipe,
		store:    store,
		audit:    audit,
	}
}

// GetMessages returns one history page, newest first. ?page= starts at 1.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	member, err := h.rooms.IsMember(c.Request.Context(), room.ID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}

	msgs, err := h.messages.ListPage(c.Request.Context(), room.ID, (page-1)*historyPageSize, historyPageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"page":     page,
		"has_more": len(msgs) == historyPageSize,
	})
}

// PostMessage stores a message and runs the fanout path.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.pipe.Submit(c.Request.Context(), room, identityFromContext(c), req.Content, false)
	if err != nil {
		h.emitAudit(c, "ERROR", "message rejected")
		writeError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, msg)
}

// EditMessage rewrites a message's content within the edit window.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.pipe.Edit(c.Request.Context(), room, identityFromContext(c), messageID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Message edited")
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage soft-deletes the caller's own message.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	if err := h.pipe.Delete(c.Request.Context(), room, identityFromContext(c), messageID); err != nil {
		writeError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Message deleted")
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// UploadFile stores an attachment and sends it as a file message.
func (h *MessageHandler) UploadFile(c *gin.Context) {
	room, ok := roomFromParam(c, h.rooms)
	if !ok {
		return
	}

	identity := identityFromContext(c)
	member, err := h.rooms.IsMember(c.Request.Context(), room.ID, identity.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	// Checked before the file touches disk so a rejected upload leaves
	// nothing behind.
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	url, err := h.store.Save(file)
	if err != nil {
		h.emitAudit(c, "ERROR", "upload rejected")
		writeError(c, err)
		return
	}

	msg, err := h.pipe.Submit(c.Request.Context(), room, identity, url, true)
	if err != nil {
		writeError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "File uploaded")
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
