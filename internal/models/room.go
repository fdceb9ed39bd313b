package models

import "time"

// RoomKind tags a room as private (exactly two members) or group.
// The kind is decided at creation and never changes.
type RoomKind string

const (
	RoomPrivate RoomKind = "private"
	RoomGroup   RoomKind = "group"
)

// Room is a persisted chat channel. AdminID is set for group rooms only.
type Room struct {
	ID        int       `db:"id" json:"id"`
	RoomUID   string    `db:"room_uid" json:"room_uid"`
	Name      string    `db:"name" json:"name"`
	Kind      RoomKind  `db:"kind" json:"kind"`
	AdminID   *int      `db:"admin_id" json:"admin_id,omitempty"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsGroup reports whether the room is a group room.
func (r Room) IsGroup() bool { return r.Kind == RoomGroup }

// IsAdmin reports whether userID holds admin rights in a group room.
func (r Room) IsAdmin(userID int) bool {
	return r.AdminID != nil && *r.AdminID == userID
}

// RoomMember is one row of a room's member set.
type RoomMember struct {
	RoomID   int       `db:"room_id" json:"room_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// RoomSummary is the sidebar view of a room for one user.
type RoomSummary struct {
	RoomID      int       `json:"room_id"`
	RoomUID     string    `json:"room_uid"`
	Kind        RoomKind  `json:"kind"`
	DisplayName string    `json:"display_name"`
	OtherUserID *int      `json:"other_user_id,omitempty"`
	IsOnline    bool      `json:"is_online"`
	UnreadCount int       `json:"unread_count"`
	LastMessage *Message  `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
