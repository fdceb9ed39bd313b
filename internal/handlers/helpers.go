package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messenger-service/internal/auth"
	"messenger-service/internal/errs"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if val, ok := c.Get("userID"); ok {
		switch userID := val.(type) {
		case int:
			if userID != 0 {
				value := int64(userID)
				return &value
			}
		case int64:
			if userID != 0 {
				value := userID
				return &value
			}
		}
	}

	if header := c.GetHeader("X-User-ID"); header != "" {
		if parsed, err := strconv.ParseInt(header, 10, 64); err == nil {
			return &parsed
		}
	}

	return nil
}

func identityFromContext(c *gin.Context) auth.Identity {
	return auth.Identity{
		UserID:   c.GetInt("userID"),
		Username: c.GetString("username"),
	}
}

// writeError maps domain errors onto HTTP statuses and writes the
// standard error body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch errs.CodeOf(err) {
	case errs.CodeAuthorizationDenied:
		status, message = http.StatusForbidden, err.Error()
	case errs.CodeNotFound:
		status, message = http.StatusNotFound, err.Error()
	case errs.CodeValidationFailed:
		status, message = http.StatusBadRequest, err.Error()
	case errs.CodeAlreadyExists:
		status, message = http.StatusConflict, err.Error()
	}
	c.JSON(status, gin.H{"error": message})
}

// roomFromParam loads the room addressed by the :room_uid path segment.
// Soft-deleted rooms read as not found at the repository layer.
func roomFromParam(c *gin.Context, rooms repositories.RoomRepository) (models.Room, bool) {
	room, err := rooms.GetRoomByUID(c.Request.Context(), c.Param("room_uid"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return models.Room{}, false
	}
	return room, true
}
