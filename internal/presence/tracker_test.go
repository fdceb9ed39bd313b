package presence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/backplane"
	"messenger-service/internal/mocks"
)

func TestTrackerTransitionsOnlyAtZeroAndOne(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	store := NewMemoryStore()
	tracker := NewTracker(store, rooms, bp)
	ctx := context.Background()

	sub, err := bp.Subscribe(backplane.UserGroup(2))
	require.NoError(t, err)

	rooms.On("CoMemberIDs", mock.Anything, 1).Return([]int{2}, nil)

	tracker.ConnOpened(ctx, 1, "alice")
	tracker.ConnOpened(ctx, 1, "alice") // second socket, no transition
	require.Len(t, sub.C, 1)

	online, err := store.IsOnline(ctx, 1)
	require.NoError(t, err)
	require.True(t, online)

	tracker.ConnClosed(ctx, 1, "alice") // one socket still open
	require.Len(t, sub.C, 1)
	online, _ = store.IsOnline(ctx, 1)
	require.True(t, online)

	tracker.ConnClosed(ctx, 1, "alice")
	require.Len(t, sub.C, 2)
	online, _ = store.IsOnline(ctx, 1)
	require.False(t, online)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(<-sub.C, &first))
	require.NoError(t, json.Unmarshal(<-sub.C, &second))
	require.Equal(t, "status_change", first["event"])
	require.Equal(t, true, first["is_online"])
	require.Equal(t, false, second["is_online"])
}

func TestTrackerNotifiesEachCoMemberOnce(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	tracker := NewTracker(NewMemoryStore(), rooms, bp)
	ctx := context.Background()

	subs := make(map[int]*backplane.Subscription)
	for _, id := range []int{2, 3} {
		sub, err := bp.Subscribe(backplane.UserGroup(id))
		require.NoError(t, err)
		subs[id] = sub
	}

	// The repository already deduplicates users sharing several rooms.
	rooms.On("CoMemberIDs", mock.Anything, 1).Return([]int{2, 3}, nil).Once()

	tracker.ConnOpened(ctx, 1, "alice")
	require.Len(t, subs[2].C, 1)
	require.Len(t, subs[3].C, 1)
	rooms.AssertExpectations(t)
}

func TestTrackerCachesAndInvalidatesCoMembers(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	bp := backplane.NewMemory()
	defer bp.Close()
	tracker := NewTracker(NewMemoryStore(), rooms, bp)
	ctx := context.Background()

	rooms.On("CoMemberIDs", mock.Anything, 1).Return([]int{2}, nil).Twice()

	tracker.ConnOpened(ctx, 1, "alice")
	tracker.ConnClosed(ctx, 1, "alice") // served from cache

	tracker.InvalidateUser(1)
	tracker.ConnOpened(ctx, 1, "alice") // cache miss hits the repo again

	rooms.AssertExpectations(t)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	online, err := store.IsOnline(ctx, 9)
	require.NoError(t, err)
	require.False(t, online)

	require.NoError(t, store.SetOnline(ctx, 9, true))
	online, _ = store.IsOnline(ctx, 9)
	require.True(t, online)

	require.NoError(t, store.SetOnline(ctx, 9, false))
	online, _ = store.IsOnline(ctx, 9)
	require.False(t, online)
}
