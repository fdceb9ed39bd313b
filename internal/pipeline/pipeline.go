package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"messenger-service/internal/auth"
	"messenger-service/internal/backplane"
	"messenger-service/internal/errs"
	"messenger-service/internal/events"
	"messenger-service/internal/models"
	"messenger-service/internal/notify"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// EditWindow bounds how long after sending a message its author may
// still edit it.
const EditWindow = 15 * time.Minute

// Pipeline runs the ordered message path: authorize, persist, create
// read rows, broadcast to the room, notify members. Persistence failure
// aborts everything downstream; later stages are best effort.
type Pipeline struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	reads    repositories.ReadStatusRepository
	bp       backplane.Backplane
	router   *notify.Router
}

// New constructs a Pipeline.
func New(rooms repositories.RoomRepository, messages repositories.MessageRepository, reads repositories.ReadStatusRepository, bp backplane.Backplane, router *notify.Router) *Pipeline {
	return &Pipeline{
		rooms:    rooms,
		messages: messages,
		reads:    reads,
		bp:       bp,
		router:   router,
	}
}

// Submit accepts a message from an authenticated author and runs the
// full path. The returned message carries the database id and timestamp.
func (p *Pipeline) Submit(ctx context.Context, room models.Room, author auth.Identity, content string, isFile bool) (models.Message, error) {
	member, err := p.rooms.IsMember(ctx, room.ID, author.UserID)
	if err != nil {
		return models.Message{}, errs.Persistence("check membership", err)
	}
	if !member {
		return models.Message{}, errs.Denied("not a member of this room")
	}
	if !isFile {
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return models.Message{}, errs.Invalid("message content is empty")
	}

	msg, err := p.messages.Create(ctx, room.ID, author.UserID, author.Username, content, isFile)
	if err != nil {
		return models.Message{}, errs.Persistence("persist message", err)
	}

	memberIDs, err := p.rooms.MemberIDs(ctx, room.ID)
	if err != nil {
		log.Printf("pipeline: member ids room=%d: %v", room.ID, err)
		memberIDs = nil
	}

	// Read rows include the author; their row is flipped when they mark
	// the room read like everyone else's.
	written, err := p.reads.FanOut(ctx, msg.ID, memberIDs)
	if err != nil || len(written) < len(memberIDs) {
		observability.IncFanoutPartialFailure()
		log.Printf("pipeline: read fanout message=%d wrote %d of %d rows: %v",
			msg.ID, len(written), len(memberIDs), err)
	}

	p.Broadcast(ctx, room.ID, events.NewChatMessage(msg))

	// Every member gets the notification, the author included, so a
	// session open elsewhere refreshes its counters too.
	unread := make(map[int]int, len(memberIDs))
	for _, id := range memberIDs {
		count, err := p.reads.UnreadCountForRoom(ctx, id, room.ID)
		if err != nil {
			log.Printf("pipeline: unread count user=%d room=%d: %v", id, room.ID, err)
		}
		unread[id] = count
	}
	p.router.NewMessage(ctx, unread, &room, author.UserID, author.Username, msg.Content)

	return msg, nil
}

// SubmitSystem persists and broadcasts a message from the system author.
// It creates no read rows and no notifications.
func (p *Pipeline) SubmitSystem(ctx context.Context, roomID int, text string) error {
	msg, err := p.messages.Create(ctx, roomID, models.SystemUserID, "System", text, false)
	if err != nil {
		return errs.Persistence("persist system message", err)
	}
	p.Broadcast(ctx, roomID, events.NewChatMessage(msg))
	return nil
}

// Edit rewrites a message's content. Only the author may edit, only
// text messages, only while the message is live and inside EditWindow.
func (p *Pipeline) Edit(ctx context.Context, room models.Room, editor auth.Identity, messageID int, content string) (models.Message, error) {
	msg, err := p.messages.Get(ctx, messageID)
	if err != nil {
		if err == repositories.ErrMessageNotFound {
			return models.Message{}, errs.NotFound("message not found")
		}
		return models.Message{}, errs.Persistence("load message", err)
	}
	if msg.RoomID != room.ID || msg.IsDeleted {
		return models.Message{}, errs.NotFound("message not found")
	}
	if !msg.SentBy(editor.UserID) {
		return models.Message{}, errs.Denied("only the author can edit a message")
	}
	if msg.IsFile {
		return models.Message{}, errs.Invalid("file messages cannot be edited")
	}
	if time.Since(msg.CreatedAt) > EditWindow {
		return models.Message{}, errs.Invalid("edit window has passed")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, errs.Invalid("message content is empty")
	}

	updated, err := p.messages.Edit(ctx, messageID, content, time.Now().UTC())
	if err != nil {
		return models.Message{}, errs.Persistence("edit message", err)
	}

	p.Broadcast(ctx, room.ID, events.NewMessageEdited(messageID, content, editor.UserID))
	p.notifyRecipients(ctx, room, editor, "Edited a message.", false)
	return updated, nil
}

// Delete soft-deletes a message. Only the author may delete.
func (p *Pipeline) Delete(ctx context.Context, room models.Room, actor auth.Identity, messageID int) error {
	msg, err := p.messages.Get(ctx, messageID)
	if err != nil {
		if err == repositories.ErrMessageNotFound {
			return errs.NotFound("message not found")
		}
		return errs.Persistence("load message", err)
	}
	if msg.RoomID != room.ID || msg.IsDeleted {
		return errs.NotFound("message not found")
	}
	if !msg.SentBy(actor.UserID) {
		return errs.Denied("only the author can delete a message")
	}

	if err := p.messages.SoftDelete(ctx, messageID); err != nil {
		return errs.Persistence("delete message", err)
	}

	p.Broadcast(ctx, room.ID, events.NewMessageDeleted(messageID))
	p.notifyRecipients(ctx, room, actor, "Deleted a message.", true)
	return nil
}

// MarkRead flips every unread row the reader has in the room and tells
// the reader's own sockets the counter reset. No one else is notified.
func (p *Pipeline) MarkRead(ctx context.Context, room models.Room, reader auth.Identity) (int64, error) {
	member, err := p.rooms.IsMember(ctx, room.ID, reader.UserID)
	if err != nil {
		return 0, errs.Persistence("check membership", err)
	}
	if !member {
		return 0, errs.Denied("not a member of this room")
	}
	rows, err := p.reads.MarkRoomRead(ctx, reader.UserID, room.ID, time.Now().UTC())
	if err != nil {
		return 0, errs.Persistence("mark room read", err)
	}
	total, err := p.reads.TotalUnread(ctx, reader.UserID)
	if err != nil {
		log.Printf("pipeline: total unread user=%d: %v", reader.UserID, err)
	}
	p.router.UnreadCleared(ctx, reader.UserID, &room, total)
	return rows, nil
}

// Typing forwards a typing indicator to the room. Nothing is persisted.
func (p *Pipeline) Typing(ctx context.Context, roomID int, username string, isTyping bool) {
	p.Broadcast(ctx, roomID, events.NewTyping(username, isTyping))
}

// Activity broadcasts a join or leave marker to the room.
func (p *Pipeline) Activity(ctx context.Context, roomID int, kind events.ActivityKind, username string) {
	p.Broadcast(ctx, roomID, events.NewActivity(kind, username))
}

// Broadcast encodes and publishes a room event to the room's group.
func (p *Pipeline) Broadcast(ctx context.Context, roomID int, ev events.RoomEvent) {
	payload, err := ev.Encode()
	if err != nil {
		log.Printf("pipeline: encode %s: %v", ev.Type, err)
		return
	}
	if err := p.bp.Publish(ctx, backplane.RoomGroup(roomID), payload); err != nil {
		log.Printf("pipeline: publish %s room=%d: %v", ev.Type, roomID, err)
	}
}

func (p *Pipeline) notifyRecipients(ctx context.Context, room models.Room, actor auth.Identity, summary string, isDelete bool) {
	memberIDs, err := p.rooms.MemberIDs(ctx, room.ID)
	if err != nil {
		log.Printf("pipeline: member ids room=%d: %v", room.ID, err)
		return
	}
	p.router.MessageUpdated(ctx, memberIDs, &room, actor.Username, summary, isDelete)
}
