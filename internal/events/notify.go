package events

import (
	"encoding/json"
	"fmt"
)

// NotifyEventType discriminates events delivered to a user's personal
// notification socket.
type NotifyEventType string

const (
	NotifyNewMessage NotifyEventType = "new_message"

	NotifyStatusChange  NotifyEventType = "status_change"
	NotifyUnreadCleared NotifyEventType = "unread_cleared"

	NotifyFriendRequestReceived  NotifyEventType = "friend_request_received"
	NotifyFriendRequestAccepted  NotifyEventType = "friend_request_accepted"
	NotifyFriendRequestRejected  NotifyEventType = "friend_request_rejected"
	NotifyFriendRequestCancelled NotifyEventType = "friend_request_cancelled"

	NotifyGroupCreated     NotifyEventType = "group_created"
	NotifyGroupDeleted     NotifyEventType = "group_deleted"
	NotifyKickedFromGroup  NotifyEventType = "kicked_from_group"
	NotifyAddedToGroup     NotifyEventType = "added_to_group"
	NotifyAdminTransferred NotifyEventType = "admin_transferred"

	NotifyMessageUpdated NotifyEventType = "message_updated"
)

// NotifyEvent is the wire form of every notification event.
type NotifyEvent struct {
	Event NotifyEventType `json:"event"`

	RoomUID  string `json:"room_id,omitempty"`
	RoomName string `json:"room_name,omitempty"`

	From     string `json:"from,omitempty"`
	SenderID int    `json:"sender_id,omitempty"`
	Content  string `json:"content,omitempty"`

	UserID   int   `json:"user_id,omitempty"`
	IsOnline *bool `json:"is_online,omitempty"`

	AddedBy   string `json:"added_by,omitempty"`
	RequestID int    `json:"request_id,omitempty"`

	UnreadCount int  `json:"unread_count,omitempty"`
	TotalUnread *int `json:"total_unread,omitempty"`

	IsGroup  bool `json:"is_group,omitempty"`
	IsDelete bool `json:"is_delete,omitempty"`
}

// NewStatusChange reports a user going online or offline.
func NewStatusChange(userID int, username string, online bool) NotifyEvent {
	return NotifyEvent{
		Event:    NotifyStatusChange,
		UserID:   userID,
		From:     username,
		IsOnline: &online,
	}
}

// Encode validates the event kind and marshals it.
func (e NotifyEvent) Encode() ([]byte, error) {
	switch e.Event {
	case NotifyNewMessage, NotifyStatusChange, NotifyUnreadCleared,
		NotifyFriendRequestReceived, NotifyFriendRequestAccepted,
		NotifyFriendRequestRejected, NotifyFriendRequestCancelled,
		NotifyGroupCreated, NotifyGroupDeleted, NotifyKickedFromGroup,
		NotifyAddedToGroup, NotifyAdminTransferred, NotifyMessageUpdated:
	default:
		return nil, fmt.Errorf("unknown notification event %q", e.Event)
	}
	return json.Marshal(e)
}
