package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/auth"
	"messenger-service/internal/backplane"
	"messenger-service/internal/errs"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/notify"
)

type pipelineFixture struct {
	rooms    *mocks.RoomRepositoryMock
	messages *mocks.MessageRepositoryMock
	reads    *mocks.ReadStatusRepositoryMock
	bp       *backplane.Memory
	pipe     *Pipeline
}

func newPipelineFixture() *pipelineFixture {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	reads := new(mocks.ReadStatusRepositoryMock)
	bp := backplane.NewMemory()
	return &pipelineFixture{
		rooms:    rooms,
		messages: messages,
		reads:    reads,
		bp:       bp,
		pipe:     New(rooms, messages, reads, bp, notify.NewRouter(bp)),
	}
}

func intPtr(v int) *int { return &v }

func testRoom() models.Room {
	return models.Room{ID: 3, RoomUID: "uid-3", Name: "general", Kind: models.RoomGroup, AdminID: intPtr(1)}
}

func TestSubmitFansOutToEveryMember(t *testing.T) {
	f := newPipelineFixture()
	defer f.bp.Close()
	room := testRoom()
	author := auth.Identity{UserID: 1, Username: "alice"}
	members := []int{1, 2, 5}

	roomSub, err := f.bp.Subscribe(backplane.RoomGroup(room.ID))
	require.NoError(t, err)
	authorSub, err := f.bp.Subscribe(backplane.UserGroup(1))
	require.NoError(t, err)
	memberSub, err := f.bp.Subscribe(backplane.UserGroup(2))
	require.NoError(t, err)

	stored := models.Message{ID: 9, RoomID: room.ID, SenderID: intPtr(1), SenderName: "alice", Content: "hi", CreatedAt: time.Now()}
	f.rooms.On("IsMember", mock.Anything, room.ID, 1).Return(true, nil).Once()
	f.messages.On("Create", mock.Anything, room.ID, 1, "alice", "hi", false).Return(stored, nil).Once()
	f.rooms.On("MemberIDs", mock.Anything, room.ID).Return(members, nil).Once()
	f.reads.On("FanOut", mock.Anything, 9, members).Return(members, nil).Once()
	for _, id := range members {
		f.reads.On("UnreadCountForRoom", mock.Anything, id, room.ID).Return(1, nil).Once()
	}

	msg, err := f.pipe.Submit(context.Background(), room, author, "  hi  ", false)
	require.NoError(t, err)
	require.Equal(t, 9, msg.ID)

	// One broadcast on the room group.
	var roomEvent map[string]any
	require.NoError(t, json.Unmarshal(<-roomSub.C, &roomEvent))
	require.Equal(t, "chat_message", roomEvent["type"])

	// Every member gets a notification, the author included, so a
	// session open elsewhere refreshes its counters too.
	var notifyEvent map[string]any
	require.NoError(t, json.Unmarshal(<-memberSub.C, &notifyEvent))
	require.Equal(t, "new_message", notifyEvent["event"])
	require.Equal(t, "uid-3", notifyEvent["room_id"])
	require.Equal(t, float64(1), notifyEvent["unread_count"])

	var authorEvent map[string]any
	require.NoError(t, json.Unmarshal(<-authorSub.C, &authorEvent))
	require.Equal(t, "new_message", authorEvent["event"])

	f.rooms.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.reads.AssertExpectations(t)
}

func TestSubmitRejectsNonMember(t *testing.T) {
	f := newPipelineFixture()
	defer f.bp.Close()
	room := testRoom()

	f.rooms.On("IsMember", mock.Anything, room.ID, 8).Return(false, nil).Once()

	_, err := f.pipe.Submit(context.Background(), room, auth.Identity{UserID: 8, Username: "mallory"}, "hi", false)
	require.True(t, errs.Is(err, errs.CodeAuthorizationDenied))
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitRejectsEmptyContent(t *testing.T) {
	f := newPipelineFixture()
	defer f.bp.Close()
	room := testRoom()

	f.rooms.On("IsMember", mock.Anything, room.ID, 1).Return(true, nil).Once()

	_, err := f.pipe.Submit(context.Background(), room, auth.Identity{UserID: 1, Username: "alice"}, "   ", false)
	require.True(t, errs.Is(err, errs.CodeValidationFailed))
}

func TestSubmitPersistFailureAbortsFanout(t *testing.T) {
	f := newPipelineFixture()
	defer f.bp.Close()
	room := testRoom()

	roomSub, err := f.bp.Subscribe(backplane.RoomGroup(room.ID))
	require.NoError(t, err)

	f.rooms.On("IsMember", mock.Anything, room.ID, 1).Return(true, nil).Once()
	f.messages.On("Create", mock.Anything, room.ID, 1, "alice", "hi", false).
		Return(models.Message{}, errs.Persistence("insert", nil)).Once()

	_, err = f.pipe.Submit(context.Background(), room, auth.Identity{UserID: 1, Username: "alice"}, "hi", false)
	require.True(t, errs.Is(err, errs.CodePersistenceFailure))

	// Nothing was broadcast and no read rows were attempted.
	require.Len(t, roomSub.C, 0)
	f.reads.AssertNotCalled(t, "FanOut", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitContinuesOnPartialReadFanout(t *testing.T) {
	f := newPipelineFixture()
	defer f.bp.Close()
	room := testRoom()
	members := []int{1, 2}

	roomSub, err := f.bp.Subscribe(backplane.RoomGroup(room.ID))
	require.NoError(t, err)

	stored := models.Message{ID: 4, RoomID: room.ID, SenderID: intPtr(1), SenderName: "alice", Content: "hi", CreatedAt: time.Now()}
	f.rooms.On("IsMember", mock.Anything, room.ID, 1).Return(true, nil).Once()
	f.messages.On("Create", mock.Anything, room.ID, 1, "alice", "hi", false).Return(stored, nil).Once()
	f.rooms.On("MemberIDs", mock.Anything, room.ID).Return(members, nil).Once()
	f.reads.On("FanOut", mock.Anything, 4, members).Return([]int{1}, nil).Once()
	f.reads.On("UnreadCountForRoom", mock.Anything, mock.Anything, room.ID).Return(1, nil)

	msg, err := f.pipe.Submit(context.Background(), room, auth.Identity{UserID: 1, Username: "alice"}, "hi", false)
	require.NoError(t, err)
	require.Equal(t, 4, msg.ID)
	require.Len(t, roomSub.C, 1)
}

func TestEditWindow(t *testing.T) {
	room := testRoom()
	editor := auth.Identity{UserID: 1, Username: "alice"}

	tests := []struct {
		name     string
		msg      models.Message
		content  string
		wantCode errs.Code
	}{
		{
			name:    "inside window",
			msg:     models.Message{ID: 2, RoomID: room.ID, SenderID: intPtr(1), CreatedAt: time.Now().Add(-time.Minute)},
			content: "fixed",
		},
		{
			name:     "window passed",
			msg:      models.Message{ID: 2, RoomID: room.ID, SenderID: intPtr(1), CreatedAt: time.Now().Add(-EditWindow - time.Minute)},
			content:  "fixed",
			wantCode: errs.CodeValidationFailed,
		},
		{
			name:     "not the author",
			msg:      models.Message{ID: 2, RoomID: room.ID, SenderID: intPtr(7), CreatedAt: time.Now()},
			content:  "fixed",
			wantCode: errs.CodeAuthorizationDenied,
		},
		{
			name:     "file message",
			msg:      models.Message{ID: 2, RoomID: room.ID, SenderID: intPtr(1), IsFile: true, CreatedAt: time.Now()},
			content:  "fixed",
			wantCode: errs.CodeValidationFailed,
		},
		{
			name:     "already deleted",
			msg:      models.Message{ID: 2, RoomID: room.ID, SenderID: intPtr(1), IsDeleted: true, CreatedAt: time.Now()},
			content:  "fixed",
			wantCode: errs.CodeNotFound,
		},
		{
			name:     "empty replacement",
			msg:      models.Message{ID: 2, RoomID: room.ID, SenderID: intPtr(1), CreatedAt: time.Now()},
			content:  "  ",
			wantCode: errs.CodeValidationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture()
			defer f.bp.Close()

			f.messages.On("Get", mock.Anything, 2).Return(tt.msg, nil).Once()
			if tt.wantCode == "" {
				edited := tt.msg
				edited.Content = tt.content
				f.messages.On("Edit", mock.Anything, 2, tt.content, mock.Anything).Return(edited, nil).Once()
				f.rooms.On("MemberIDs", mock.Anything, room.ID).Return([]int{1, 2}, nil).Once()
			}

			_, err := f.pipe.Edit(context.Background(), room, editor, 2, tt.content)
			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				require.True(t, errs.Is(err, tt.wantCode), "got %v", err)
				f.messages.AssertNotCalled(t, "Edit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestDeleteBroadcastsAndNotifies(t *testing.T) {
	f := newPipelineFixture()
	defer f.bp.Close()
	room := testRoom()

	roomSub, err := f.bp.Subscribe(backplane.RoomGroup(room.ID))
	require.NoError(t, err)
	memberSub, err := f.bp.Subscribe(backplane.UserGroup(2))
	require.NoError(t, err)
	authorSub, err := f.bp.Subscribe(backplane.UserGroup(1))
	require.NoError(t, err)

	msg := models.Message{ID: 6, RoomID: room.ID, SenderID: intPtr(1), CreatedAt: time.Now()}
	f.messages.On("Get", mock.Anything, 6).Return(msg, nil).Once()
	f.messages.On("SoftDelete", mock.Anything, 6).Return(nil).Once()
	f.rooms.On("MemberIDs", mock.Anything, room.ID).Return([]int{1, 2}, nil).Once()

	require.NoError(t, f.pipe.Delete(context.Background(), room, auth.Identity{UserID: 1, Username: "alice"}, 6))

	var roomEvent map[string]any
	require.NoError(t, json.Unmarshal(<-roomSub.C, &roomEvent))
	require.Equal(t, "message_deleted", roomEvent["type"])
	require.Equal(t, float64(6), roomEvent["message_id"])

	var notifyEvent map[string]any
	require.NoError(t, json.Unmarshal(<-memberSub.C, &notifyEvent))
	require.Equal(t, "message_updated", notifyEvent["event"])
	require.Equal(t, true, notifyEvent["is_delete"])

	// The author's other sessions hear about the update too.
	require.NoError(t, json.Unmarshal(<-authorSub.C, &notifyEvent))
	require.Equal(t, "message_updated", notifyEvent["event"])
}

func TestMarkReadNotifiesReaderOnly(t *testing.T) {
	f := newPipelineFixture()
	defer f.bp.Close()
	room := testRoom()

	readerSub, err := f.bp.Subscribe(backplane.UserGroup(2))
	require.NoError(t, err)
	otherSub, err := f.bp.Subscribe(backplane.UserGroup(1))
	require.NoError(t, err)

	f.rooms.On("IsMember", mock.Anything, room.ID, 2).Return(true, nil).Once()
	f.reads.On("MarkRoomRead", mock.Anything, 2, room.ID, mock.Anything).Return(int64(3), nil).Once()
	f.reads.On("TotalUnread", mock.Anything, 2).Return(5, nil).Once()

	rows, err := f.pipe.MarkRead(context.Background(), room, auth.Identity{UserID: 2, Username: "bob"})
	require.NoError(t, err)
	require.Equal(t, int64(3), rows)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(<-readerSub.C, &ev))
	require.Equal(t, "unread_cleared", ev["event"])
	require.Equal(t, float64(5), ev["total_unread"])
	require.Len(t, otherSub.C, 0)
}
