package repositories

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"messenger-service/internal/db"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("messenger"),
		postgres.WithUsername("messenger"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Printf("failed to get connection string: %v", err)
		return
	}

	testDB, err = sqlx.Connect("postgres", connStr)
	if err != nil {
		log.Printf("failed to connect: %v", err)
		return
	}
	if err := db.Migrate(testDB); err != nil {
		log.Printf("failed to migrate: %v", err)
		return
	}

	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

func TestGetOrCreatePrivateIsPairOrderIndependent(t *testing.T) {
	repo := NewRoomRepo(testDB)
	ctx := context.Background()

	room, created, err := repo.GetOrCreatePrivate(ctx, 101, 102)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, room.RoomUID)

	again, created, err := repo.GetOrCreatePrivate(ctx, 102, 101)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, room.ID, again.ID)

	member, err := repo.IsMember(ctx, room.ID, 101)
	require.NoError(t, err)
	require.True(t, member)
	member, err = repo.IsMember(ctx, room.ID, 102)
	require.NoError(t, err)
	require.True(t, member)

	_, _, err = repo.GetOrCreatePrivate(ctx, 101, 101)
	require.Error(t, err)
}

func TestGetOrCreatePrivateConcurrentCallersConverge(t *testing.T) {
	repo := NewRoomRepo(testDB)
	ctx := context.Background()

	// Both callers race past the lookup; the loser of the pair insert
	// must surface the winner's room, not the constraint error.
	const callers = 8
	roomIDs := make([]int, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, _, err := repo.GetOrCreatePrivate(ctx, 111, 112)
			roomIDs[i] = room.ID
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, roomIDs[0], roomIDs[i])
	}
}

func TestReadFanoutAndMarkRead(t *testing.T) {
	rooms := NewRoomRepo(testDB)
	messages := NewMessageRepo(testDB)
	reads := NewReadStatusRepo(testDB)
	ctx := context.Background()

	room, err := rooms.CreateGroup(ctx, 201, "fanout", []int{202, 203})
	require.NoError(t, err)

	msg, err := messages.Create(ctx, room.ID, 201, "alice", "hello", false)
	require.NoError(t, err)

	memberIDs, err := rooms.MemberIDs(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, []int{201, 202, 203}, memberIDs)

	written, err := reads.FanOut(ctx, msg.ID, memberIDs)
	require.NoError(t, err)
	require.Equal(t, memberIDs, written)

	// Re-running must not duplicate rows.
	written, err = reads.FanOut(ctx, msg.ID, memberIDs)
	require.NoError(t, err)
	require.Equal(t, memberIDs, written)

	count, err := reads.UnreadCountForRoom(ctx, 202, room.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	flipped, err := reads.MarkRoomRead(ctx, 202, room.ID, msg.CreatedAt)
	require.NoError(t, err)
	require.Equal(t, int64(1), flipped)

	count, err = reads.UnreadCountForRoom(ctx, 202, room.ID)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// The author's own row is unread until they mark the room read too.
	total, err := reads.TotalUnread(ctx, 201)
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestLeaveGroupReassignsAdminAndDeletesWhenEmpty(t *testing.T) {
	rooms := NewRoomRepo(testDB)
	ctx := context.Background()

	room, err := rooms.CreateGroup(ctx, 303, "leavers", []int{301, 302})
	require.NoError(t, err)

	// Departing admin hands the role to the lowest remaining id.
	newAdminID, deleted, err := rooms.LeaveGroup(ctx, room.ID, 303)
	require.NoError(t, err)
	require.False(t, deleted)
	require.NotNil(t, newAdminID)
	require.Equal(t, 301, *newAdminID)

	current, err := rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.True(t, current.IsAdmin(301))

	_, deleted, err = rooms.LeaveGroup(ctx, room.ID, 301)
	require.NoError(t, err)
	require.False(t, deleted)

	// Last member out deletes the room.
	_, deleted, err = rooms.LeaveGroup(ctx, room.ID, 302)
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = rooms.GetRoom(ctx, room.ID)
	require.ErrorIs(t, err, ErrRoomNotFound)

	_, _, err = rooms.LeaveGroup(ctx, room.ID, 302)
	require.Error(t, err)
}

func TestKickMember(t *testing.T) {
	rooms := NewRoomRepo(testDB)
	ctx := context.Background()

	room, err := rooms.CreateGroup(ctx, 401, "kicks", []int{402})
	require.NoError(t, err)

	require.NoError(t, rooms.KickMember(ctx, room.ID, 402))

	member, err := rooms.IsMember(ctx, room.ID, 402)
	require.NoError(t, err)
	require.False(t, member)

	require.ErrorIs(t, rooms.KickMember(ctx, room.ID, 402), ErrNotMember)
}

func TestAddMemberConflict(t *testing.T) {
	rooms := NewRoomRepo(testDB)
	ctx := context.Background()

	room, err := rooms.CreateGroup(ctx, 501, "joiners", nil)
	require.NoError(t, err)

	require.NoError(t, rooms.AddMember(ctx, room.ID, 502))
	require.ErrorIs(t, rooms.AddMember(ctx, room.ID, 502), ErrAlreadyMember)
}

func TestSoftDeleteRoomCascadesToMessages(t *testing.T) {
	rooms := NewRoomRepo(testDB)
	messages := NewMessageRepo(testDB)
	ctx := context.Background()

	room, err := rooms.CreateGroup(ctx, 601, "doomed", []int{602})
	require.NoError(t, err)
	msg, err := messages.Create(ctx, room.ID, 601, "alice", "bye", false)
	require.NoError(t, err)

	require.NoError(t, rooms.SoftDeleteRoom(ctx, room.ID))

	_, err = rooms.GetRoomByUID(ctx, room.RoomUID)
	require.ErrorIs(t, err, ErrRoomNotFound)

	page, err := messages.ListPage(ctx, room.ID, 0, 20)
	require.NoError(t, err)
	require.Empty(t, page)

	// The raw row still exists with its content.
	stored, err := messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, stored.IsDeleted)
	require.Equal(t, "bye", stored.Content)
}

func TestMessageEditAndListPage(t *testing.T) {
	rooms := NewRoomRepo(testDB)
	messages := NewMessageRepo(testDB)
	ctx := context.Background()

	room, err := rooms.CreateGroup(ctx, 701, "history", nil)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, err := messages.Create(ctx, room.ID, 701, "alice", "msg", false)
		require.NoError(t, err)
	}

	page, err := messages.ListPage(ctx, room.ID, 0, 20)
	require.NoError(t, err)
	require.Len(t, page, 20)

	page, err = messages.ListPage(ctx, room.ID, 20, 20)
	require.NoError(t, err)
	require.Len(t, page, 5)

	last, err := messages.LastMessage(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, last)

	edited, err := messages.Edit(ctx, last.ID, "changed", last.CreatedAt)
	require.NoError(t, err)
	require.Equal(t, "changed", edited.Content)
	require.NotNil(t, edited.EditedAt)
}

func TestFriendWorkflow(t *testing.T) {
	friends := NewFriendRepo(testDB)
	ctx := context.Background()

	link, err := friends.SendRequest(ctx, 801, 802)
	require.NoError(t, err)
	require.False(t, link.IsAccepted)

	// Either direction counts as an existing link.
	_, err = friends.SendRequest(ctx, 802, 801)
	require.ErrorIs(t, err, ErrRequestExists)

	_, err = friends.SendRequest(ctx, 801, 801)
	require.Error(t, err)

	pending, err := friends.PendingFor(ctx, 802)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Only the addressee can accept.
	_, err = friends.AcceptRequest(ctx, link.ID, 801)
	require.ErrorIs(t, err, ErrRequestNotFound)

	accepted, err := friends.AcceptRequest(ctx, link.ID, 802)
	require.NoError(t, err)
	require.True(t, accepted.IsAccepted)

	areFriends, err := friends.AreFriends(ctx, 802, 801)
	require.NoError(t, err)
	require.True(t, areFriends)

	ids, err := friends.FriendIDs(ctx, 801)
	require.NoError(t, err)
	require.Equal(t, []int{802}, ids)

	count, err := friends.PendingCount(ctx, 802)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
