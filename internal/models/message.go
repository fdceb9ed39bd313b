package models

import (
	"path"
	"strings"
	"time"
)

// SystemUserID is the reserved author id for synthetic room messages
// ("x was removed by admin" and the like).
const SystemUserID = 0

// Message is a persisted room message. SenderID is nullable so history
// survives author deletion; SenderName is denormalized at write time.
type Message struct {
	ID         int        `db:"id" json:"id"`
	RoomID     int        `db:"room_id" json:"room_id"`
	SenderID   *int       `db:"sender_id" json:"sender_id,omitempty"`
	SenderName string     `db:"sender_name" json:"sender_name"`
	Content    string     `db:"content" json:"content"`
	IsFile     bool       `db:"is_file" json:"is_file"`
	IsDeleted  bool       `db:"is_deleted" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	EditedAt   *time.Time `db:"edited_at" json:"edited_at,omitempty"`
}

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
}

// IsImage reports whether a file message points at an image, derived
// from the URL extension.
func (m Message) IsImage() bool {
	if !m.IsFile {
		return false
	}
	ext := strings.ToLower(path.Ext(m.Content))
	_, ok := imageExtensions[ext]
	return ok
}

// SentBy reports whether userID authored the message.
func (m Message) SentBy(userID int) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// ReadStatus is the per-(user, message) read marker.
type ReadStatus struct {
	UserID    int        `db:"user_id" json:"user_id"`
	MessageID int        `db:"message_id" json:"message_id"`
	IsRead    bool       `db:"is_read" json:"is_read"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
}

// RoomUnread pairs a room with a user's unread count in it.
type RoomUnread struct {
	RoomID int `db:"room_id" json:"room_id"`
	Count  int `db:"count" json:"count"`
}
