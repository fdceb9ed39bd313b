package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)

func (m *RoomRepositoryMock) GetOrCreatePrivate(ctx context.Context, userID int, friendID int) (models.Room, bool, error) {
	args := m.Called(ctx, userID, friendID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) CreateGroup(ctx context.Context, adminID int, name string, memberIDs []int) (models.Room, error) {
	args := m.Called(ctx, adminID, name, memberIDs)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetRoomByUID(ctx context.Context, roomUID string) (models.Room, error) {
	args := m.Called(ctx, roomUID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) MemberIDs(ctx context.Context, roomID int) ([]int, error) {
	args := m.Called(ctx, roomID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) CoMemberIDs(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *RoomRepositoryMock) AddMember(ctx context.Context, roomID int, userID int) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) KickMember(ctx context.Context, roomID int, userID int) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) LeaveGroup(ctx context.Context, roomID int, userID int) (*int, bool, error) {
	args := m.Called(ctx, roomID, userID)
	var newAdminID *int
	if val := args.Get(0); val != nil {
		newAdminID = val.(*int)
	}
	return newAdminID, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) TransferAdmin(ctx context.Context, roomID int, newAdminID int) error {
	args := m.Called(ctx, roomID, newAdminID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) SoftDeleteRoom(ctx context.Context, roomID int) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)

func (m *MessageRepositoryMock) Create(ctx context.Context, roomID int, senderID int, senderName string, content string, isFile bool) (models.Message, error) {
	args := m.Called(ctx, roomID, senderID, senderName, content, isFile)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, roomID int, offset int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, offset, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LastMessage(ctx context.Context, roomID int) (*models.Message, error) {
	args := m.Called(ctx, roomID)
	var msg *models.Message
	if val := args.Get(0); val != nil {
		msg = val.(*models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID int, content string, editedAt time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, content, editedAt)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type ReadStatusRepositoryMock struct {
	mock.Mock
}

var _ repositories.ReadStatusRepository = (*ReadStatusRepositoryMock)(nil)

func (m *ReadStatusRepositoryMock) FanOut(ctx context.Context, messageID int, memberIDs []int) ([]int, error) {
	args := m.Called(ctx, messageID, memberIDs)
	var written []int
	if val := args.Get(0); val != nil {
		written = val.([]int)
	}
	return written, args.Error(1)
}

func (m *ReadStatusRepositoryMock) MarkRoomRead(ctx context.Context, userID int, roomID int, readAt time.Time) (int64, error) {
	args := m.Called(ctx, userID, roomID, readAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReadStatusRepositoryMock) UnreadCountForRoom(ctx context.Context, userID int, roomID int) (int, error) {
	args := m.Called(ctx, userID, roomID)
	return args.Int(0), args.Error(1)
}

func (m *ReadStatusRepositoryMock) UnreadByRoom(ctx context.Context, userID int) ([]models.RoomUnread, error) {
	args := m.Called(ctx, userID)
	var unreads []models.RoomUnread
	if val := args.Get(0); val != nil {
		unreads = val.([]models.RoomUnread)
	}
	return unreads, args.Error(1)
}

func (m *ReadStatusRepositoryMock) TotalUnread(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type FriendRepositoryMock struct {
	mock.Mock
}

var _ repositories.FriendRepository = (*FriendRepositoryMock)(nil)

func (m *FriendRepositoryMock) SendRequest(ctx context.Context, fromUserID int, toUserID int) (models.FriendLink, error) {
	args := m.Called(ctx, fromUserID, toUserID)
	var link models.FriendLink
	if val := args.Get(0); val != nil {
		link = val.(models.FriendLink)
	}
	return link, args.Error(1)
}

func (m *FriendRepositoryMock) GetRequest(ctx context.Context, requestID int) (models.FriendLink, error) {
	args := m.Called(ctx, requestID)
	var link models.FriendLink
	if val := args.Get(0); val != nil {
		link = val.(models.FriendLink)
	}
	return link, args.Error(1)
}

func (m *FriendRepositoryMock) AcceptRequest(ctx context.Context, requestID int, toUserID int) (models.FriendLink, error) {
	args := m.Called(ctx, requestID, toUserID)
	var link models.FriendLink
	if val := args.Get(0); val != nil {
		link = val.(models.FriendLink)
	}
	return link, args.Error(1)
}

func (m *FriendRepositoryMock) DeleteRequest(ctx context.Context, requestID int, userID int) (models.FriendLink, error) {
	args := m.Called(ctx, requestID, userID)
	var link models.FriendLink
	if val := args.Get(0); val != nil {
		link = val.(models.FriendLink)
	}
	return link, args.Error(1)
}

func (m *FriendRepositoryMock) AreFriends(ctx context.Context, userID int, otherID int) (bool, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Bool(0), args.Error(1)
}

func (m *FriendRepositoryMock) FriendIDs(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *FriendRepositoryMock) PendingFor(ctx context.Context, userID int) ([]models.FriendLink, error) {
	args := m.Called(ctx, userID)
	var links []models.FriendLink
	if val := args.Get(0); val != nil {
		links = val.([]models.FriendLink)
	}
	return links, args.Error(1)
}

func (m *FriendRepositoryMock) PendingCount(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}
