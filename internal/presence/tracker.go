package presence

import (
	"context"
	"log"
	"sync"

	"messenger-service/internal/backplane"
	"messenger-service/internal/events"
	"messenger-service/internal/repositories"
)

// Tracker turns per-socket connect/disconnect calls into user-level
// online/offline transitions and fans each transition out to the users
// who share a room with the subject, once per recipient.
type Tracker struct {
	store Store
	rooms repositories.RoomRepository
	bp    backplane.Backplane

	mu       sync.Mutex
	sockets  map[int]int   // userID -> open socket count
	coMember map[int][]int // userID -> cached co-member ids
}

// NewTracker constructs a Tracker.
func NewTracker(store Store, rooms repositories.RoomRepository, bp backplane.Backplane) *Tracker {
	return &Tracker{
		store:    store,
		rooms:    rooms,
		bp:       bp,
		sockets:  make(map[int]int),
		coMember: make(map[int][]int),
	}
}

// ConnOpened records one more open socket for the user. Only the
// 0 -> 1 transition marks the user online and notifies co-members.
func (t *Tracker) ConnOpened(ctx context.Context, userID int, username string) {
	t.mu.Lock()
	t.sockets[userID]++
	first := t.sockets[userID] == 1
	t.mu.Unlock()
	if !first {
		return
	}
	if err := t.store.SetOnline(ctx, userID, true); err != nil {
		log.Printf("presence: set online user=%d: %v", userID, err)
	}
	t.fanStatus(ctx, userID, username, true)
}

// ConnClosed records one socket gone. Only the 1 -> 0 transition marks
// the user offline and notifies co-members.
func (t *Tracker) ConnClosed(ctx context.Context, userID int, username string) {
	t.mu.Lock()
	if t.sockets[userID] > 0 {
		t.sockets[userID]--
	}
	last := t.sockets[userID] == 0
	if last {
		delete(t.sockets, userID)
	}
	t.mu.Unlock()
	if !last {
		return
	}
	if err := t.store.SetOnline(ctx, userID, false); err != nil {
		log.Printf("presence: set offline user=%d: %v", userID, err)
	}
	t.fanStatus(ctx, userID, username, false)
}

// InvalidateUser drops the cached co-member set for a user. Callers
// invoke it after any membership change that involves the user.
func (t *Tracker) InvalidateUser(userID int) {
	t.mu.Lock()
	delete(t.coMember, userID)
	t.mu.Unlock()
}

// InvalidateUsers drops cached co-member sets for several users at once,
// typically all members of a changed room.
func (t *Tracker) InvalidateUsers(userIDs []int) {
	t.mu.Lock()
	for _, id := range userIDs {
		delete(t.coMember, id)
	}
	t.mu.Unlock()
}

// IsOnline reports the stored online flag for a user.
func (t *Tracker) IsOnline(ctx context.Context, userID int) bool {
	online, err := t.store.IsOnline(ctx, userID)
	if err != nil {
		log.Printf("presence: read online user=%d: %v", userID, err)
		return false
	}
	return online
}

func (t *Tracker) coMembers(ctx context.Context, userID int) []int {
	t.mu.Lock()
	cached, ok := t.coMember[userID]
	t.mu.Unlock()
	if ok {
		return cached
	}
	ids, err := t.rooms.CoMemberIDs(ctx, userID)
	if err != nil {
		log.Printf("presence: co-members user=%d: %v", userID, err)
		return nil
	}
	t.mu.Lock()
	t.coMember[userID] = ids
	t.mu.Unlock()
	return ids
}

func (t *Tracker) fanStatus(ctx context.Context, userID int, username string, online bool) {
	ev := events.NewStatusChange(userID, username, online)
	payload, err := ev.Encode()
	if err != nil {
		log.Printf("presence: encode status change: %v", err)
		return
	}
	for _, id := range t.coMembers(ctx, userID) {
		if err := t.bp.Publish(ctx, backplane.UserGroup(id), payload); err != nil {
			log.Printf("presence: publish status user=%d -> %d: %v", userID, id, err)
		}
	}
}
