package notify

import (
	"context"
	"log"

	"messenger-service/internal/backplane"
	"messenger-service/internal/events"
	"messenger-service/internal/models"
)

// Router delivers notification events to user groups on the backplane.
// Every method is best-effort: delivery failures are logged, never
// returned, so callers finish their own work regardless.
type Router struct {
	bp backplane.Backplane
}

// NewRouter constructs a Router.
func NewRouter(bp backplane.Backplane) *Router {
	return &Router{bp: bp}
}

func (r *Router) send(ctx context.Context, userID int, ev events.NotifyEvent) {
	payload, err := ev.Encode()
	if err != nil {
		log.Printf("notify: encode %s: %v", ev.Event, err)
		return
	}
	if err := r.bp.Publish(ctx, backplane.UserGroup(userID), payload); err != nil {
		log.Printf("notify: publish %s to user=%d: %v", ev.Event, userID, err)
	}
}

func (r *Router) sendAll(ctx context.Context, userIDs []int, ev events.NotifyEvent) {
	for _, id := range userIDs {
		r.send(ctx, id, ev)
	}
}

// NewMessage tells each recipient a message landed in one of their
// rooms. The map carries the recipient's unread count for that room so
// clients update badges without a round trip.
func (r *Router) NewMessage(ctx context.Context, unreadByUser map[int]int, room *models.Room, senderID int, senderName, content string) {
	for userID, unread := range unreadByUser {
		r.send(ctx, userID, events.NotifyEvent{
			Event:       events.NotifyNewMessage,
			RoomUID:     room.RoomUID,
			RoomName:    room.Name,
			From:        senderName,
			SenderID:    senderID,
			Content:     content,
			IsGroup:     room.IsGroup(),
			UnreadCount: unread,
		})
	}
}

// UnreadCleared tells the reader their unread counter for a room reset,
// along with what remains unread across their other rooms.
func (r *Router) UnreadCleared(ctx context.Context, userID int, room *models.Room, totalUnread int) {
	r.send(ctx, userID, events.NotifyEvent{
		Event:       events.NotifyUnreadCleared,
		RoomUID:     room.RoomUID,
		TotalUnread: &totalUnread,
	})
}

// MessageUpdated tells recipients a message in the room was edited or
// deleted after the fact.
func (r *Router) MessageUpdated(ctx context.Context, recipients []int, room *models.Room, senderName, summary string, isDelete bool) {
	r.sendAll(ctx, recipients, events.NotifyEvent{
		Event:    events.NotifyMessageUpdated,
		RoomUID:  room.RoomUID,
		RoomName: room.Name,
		From:     senderName,
		Content:  summary,
		IsGroup:  room.IsGroup(),
		IsDelete: isDelete,
	})
}

// FriendRequestReceived tells the target a request arrived.
func (r *Router) FriendRequestReceived(ctx context.Context, toUserID, requestID, fromUserID int, fromUsername string) {
	r.send(ctx, toUserID, events.NotifyEvent{
		Event:     events.NotifyFriendRequestReceived,
		RequestID: requestID,
		SenderID:  fromUserID,
		From:      fromUsername,
	})
}

// FriendRequestAccepted tells the original sender their request was accepted.
func (r *Router) FriendRequestAccepted(ctx context.Context, toUserID, requestID int, byUsername string) {
	r.send(ctx, toUserID, events.NotifyEvent{
		Event:     events.NotifyFriendRequestAccepted,
		RequestID: requestID,
		From:      byUsername,
	})
}

// FriendRequestRejected tells the original sender their request was rejected.
func (r *Router) FriendRequestRejected(ctx context.Context, toUserID, requestID int, byUsername string) {
	r.send(ctx, toUserID, events.NotifyEvent{
		Event:     events.NotifyFriendRequestRejected,
		RequestID: requestID,
		From:      byUsername,
	})
}

// FriendRequestCancelled tells the target an open request was withdrawn.
func (r *Router) FriendRequestCancelled(ctx context.Context, toUserID, requestID int) {
	r.send(ctx, toUserID, events.NotifyEvent{
		Event:     events.NotifyFriendRequestCancelled,
		RequestID: requestID,
	})
}

// GroupCreated tells each initial member they were put in a new group.
func (r *Router) GroupCreated(ctx context.Context, memberIDs []int, room *models.Room, creatorName string) {
	r.sendAll(ctx, memberIDs, events.NotifyEvent{
		Event:    events.NotifyGroupCreated,
		RoomUID:  room.RoomUID,
		RoomName: room.Name,
		From:     creatorName,
		IsGroup:  true,
	})
}

// GroupDeleted tells each member the group is gone.
func (r *Router) GroupDeleted(ctx context.Context, memberIDs []int, room *models.Room) {
	r.sendAll(ctx, memberIDs, events.NotifyEvent{
		Event:    events.NotifyGroupDeleted,
		RoomUID:  room.RoomUID,
		RoomName: room.Name,
		IsGroup:  true,
	})
}

// KickedFromGroup tells the removed user about the removal.
func (r *Router) KickedFromGroup(ctx context.Context, userID int, room *models.Room) {
	r.send(ctx, userID, events.NotifyEvent{
		Event:    events.NotifyKickedFromGroup,
		RoomUID:  room.RoomUID,
		RoomName: room.Name,
		IsGroup:  true,
	})
}

// AddedToGroup tells the new member who pulled them in.
func (r *Router) AddedToGroup(ctx context.Context, userID int, room *models.Room, addedBy string) {
	r.send(ctx, userID, events.NotifyEvent{
		Event:    events.NotifyAddedToGroup,
		RoomUID:  room.RoomUID,
		RoomName: room.Name,
		AddedBy:  addedBy,
		IsGroup:  true,
	})
}

// AdminTransferred tells the new admin about their promotion.
func (r *Router) AdminTransferred(ctx context.Context, userID int, room *models.Room) {
	r.send(ctx, userID, events.NotifyEvent{
		Event:    events.NotifyAdminTransferred,
		RoomUID:  room.RoomUID,
		RoomName: room.Name,
		IsGroup:  true,
	})
}
