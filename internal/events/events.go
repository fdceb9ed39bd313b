package events

import (
	"encoding/json"
	"fmt"
	"time"

	"messenger-service/internal/models"
)

// RoomEventType discriminates events delivered to room sockets.
type RoomEventType string

const (
	RoomChatMessage    RoomEventType = "chat_message"
	RoomChatActivity   RoomEventType = "chat_activity"
	RoomGroupUpdate    RoomEventType = "group_update"
	RoomMessageEdited  RoomEventType = "message_edited"
	RoomMessageDeleted RoomEventType = "message_deleted"
	RoomError          RoomEventType = "error"
)

// ActivityKind is the sub-kind of a chat_activity event.
type ActivityKind string

const (
	ActivityUserJoin  ActivityKind = "user_join"
	ActivityUserLeave ActivityKind = "user_leave"
	ActivityTyping    ActivityKind = "typing"
)

// GroupUpdateKind is the sub-kind of a group_update event.
type GroupUpdateKind string

const (
	GroupMemberAdded      GroupUpdateKind = "member_added"
	GroupMemberLeft       GroupUpdateKind = "member_left"
	GroupMemberKicked     GroupUpdateKind = "member_kicked"
	GroupAdminTransferred GroupUpdateKind = "admin_transferred"
)

// Sender is the author summary embedded in chat_message events.
type Sender struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// RoomEvent is the wire form of every room-socket event. Exactly one
// payload section is set, matching Type; Encode enforces that.
type RoomEvent struct {
	Type RoomEventType `json:"type"`

	// chat_message
	MessageID int     `json:"message_id,omitempty"`
	Message   string  `json:"message,omitempty"`
	Sender    *Sender `json:"sender,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	IsFile    bool    `json:"is_file,omitempty"`
	IsImage   bool    `json:"is_image,omitempty"`

	// chat_activity
	Activity ActivityKind `json:"event,omitempty"`
	Username string       `json:"username,omitempty"`
	IsTyping *bool        `json:"is_typing,omitempty"`

	// group_update
	Update     GroupUpdateKind `json:"event_type,omitempty"`
	UserID     int             `json:"user_id,omitempty"`
	NewAdminID int             `json:"new_admin_id,omitempty"`
	OldAdminID int             `json:"old_admin_id,omitempty"`
	AddedBy    int             `json:"added_by,omitempty"`

	// message_edited / message_deleted
	Content  string `json:"content,omitempty"`
	SenderID int    `json:"sender_id,omitempty"`

	// error
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// NewChatMessage builds the broadcast form of a persisted message.
func NewChatMessage(msg models.Message) RoomEvent {
	sender := &Sender{ID: models.SystemUserID, Username: msg.SenderName}
	if msg.SenderID != nil {
		sender.ID = *msg.SenderID
	}
	return RoomEvent{
		Type:      RoomChatMessage,
		MessageID: msg.ID,
		Message:   msg.Content,
		Sender:    sender,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsFile:    msg.IsFile,
		IsImage:   msg.IsImage(),
	}
}

// NewSystemMessage is a synthetic chat_message from the system author.
func NewSystemMessage(text string) RoomEvent {
	return RoomEvent{
		Type:      RoomChatMessage,
		Message:   text,
		Sender:    &Sender{ID: models.SystemUserID, Username: "System"},
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func NewActivity(kind ActivityKind, username string) RoomEvent {
	return RoomEvent{Type: RoomChatActivity, Activity: kind, Username: username}
}

func NewTyping(username string, isTyping bool) RoomEvent {
	return RoomEvent{Type: RoomChatActivity, Activity: ActivityTyping, Username: username, IsTyping: &isTyping}
}

func NewGroupUpdate(kind GroupUpdateKind) RoomEvent {
	return RoomEvent{Type: RoomGroupUpdate, Update: kind}
}

func NewMessageEdited(messageID int, content string, senderID int) RoomEvent {
	return RoomEvent{Type: RoomMessageEdited, MessageID: messageID, Content: content, SenderID: senderID}
}

func NewMessageDeleted(messageID int) RoomEvent {
	return RoomEvent{Type: RoomMessageDeleted, MessageID: messageID}
}

// NewError is the synchronous rejection sent back to the connection
// whose frame was refused. Never broadcast, only written to the sender.
func NewError(code, detail string) RoomEvent {
	return RoomEvent{Type: RoomError, Code: code, Detail: detail}
}

// Encode validates the event kind and marshals it. Unknown kinds are a
// programming error surfaced here rather than silently broadcast.
func (e RoomEvent) Encode() ([]byte, error) {
	switch e.Type {
	case RoomChatMessage:
		if e.Sender == nil {
			return nil, fmt.Errorf("chat_message without sender")
		}
	case RoomChatActivity:
		switch e.Activity {
		case ActivityUserJoin, ActivityUserLeave, ActivityTyping:
		default:
			return nil, fmt.Errorf("unknown activity kind %q", e.Activity)
		}
	case RoomGroupUpdate:
		switch e.Update {
		case GroupMemberAdded, GroupMemberLeft, GroupMemberKicked, GroupAdminTransferred:
		default:
			return nil, fmt.Errorf("unknown group update kind %q", e.Update)
		}
	case RoomMessageEdited, RoomMessageDeleted:
		if e.MessageID == 0 {
			return nil, fmt.Errorf("%s without message_id", e.Type)
		}
	case RoomError:
		if e.Code == "" {
			return nil, fmt.Errorf("error event without code")
		}
	default:
		return nil, fmt.Errorf("unknown room event type %q", e.Type)
	}
	return json.Marshal(e)
}
