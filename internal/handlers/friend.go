package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/notify"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// FriendHandler manages the friend request workflow.
type FriendHandler struct {
	friends repositories.FriendRepository
	router  *notify.Router
	audit   *telemetry.AuditEmitter
}

// NewFriendHandler builds a FriendHandler.
func NewFriendHandler(friends repositories.FriendRepository, router *notify.Router, audit *telemetry.AuditEmitter) *FriendHandler {
	return &FriendHandler{friends: friends, router: router, audit: audit}
}

// SendRequest opens a friend request to another user.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := identityFromContext(c)
	link, err := h.friends.SendRequest(c.Request.Context(), identity.UserID, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrRequestExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "request already exists"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not send request"})
		return
	}

	h.router.FriendRequestReceived(c.Request.Context(), req.UserID, link.ID, identity.UserID, identity.Username)
	h.emitAudit(c, "INFO", "Friend request sent")
	c.JSON(http.StatusCreated, link)
}

// AcceptRequest accepts a pending request addressed to the caller.
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	requestID, err := strconv.Atoi(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	identity := identityFromContext(c)
	link, err := h.friends.AcceptRequest(c.Request.Context(), requestID, identity.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not accept request"})
		return
	}

	h.router.FriendRequestAccepted(c.Request.Context(), link.FromUserID, link.ID, identity.Username)
	h.emitAudit(c, "INFO", "Friend request accepted")
	c.JSON(http.StatusOK, link)
}

// RejectRequest declines a pending request addressed to the caller.
func (h *FriendHandler) RejectRequest(c *gin.Context) {
	requestID, err := strconv.Atoi(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	identity := identityFromContext(c)
	link, err := h.friends.DeleteRequest(c.Request.Context(), requestID, identity.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reject request"})
		return
	}

	if link.ToUserID == identity.UserID {
		h.router.FriendRequestRejected(c.Request.Context(), link.FromUserID, link.ID, identity.Username)
	}
	h.emitAudit(c, "INFO", "Friend request rejected")
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// CancelRequest withdraws a request the caller sent.
func (h *FriendHandler) CancelRequest(c *gin.Context) {
	requestID, err := strconv.Atoi(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	identity := identityFromContext(c)
	link, err := h.friends.DeleteRequest(c.Request.Context(), requestID, identity.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not cancel request"})
		return
	}

	if link.FromUserID == identity.UserID {
		h.router.FriendRequestCancelled(c.Request.Context(), link.ToUserID, link.ID)
	}
	h.emitAudit(c, "INFO", "Friend request cancelled")
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ListFriends returns the caller's accepted friend ids.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	userID := c.GetInt("userID")
	ids, err := h.friends.FriendIDs(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load friends"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"friend_ids": ids})
}

// PendingRequests returns requests waiting on the caller.
func (h *FriendHandler) PendingRequests(c *gin.Context) {
	userID := c.GetInt("userID")
	links, err := h.friends.PendingFor(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}
	count, err := h.friends.PendingCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": links, "count": count})
}

func (h *FriendHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
