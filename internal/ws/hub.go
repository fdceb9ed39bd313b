package ws

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"messenger-service/internal/backplane"
	"messenger-service/internal/observability"
)

// client wraps a websocket connection with a write lock. One client
// exists per connection no matter how many groups it joins, so every
// pump that can reach the conn writes through the same lock; gorilla
// permits one writer at a time. refs counts group memberships and is
// guarded by the hub lock.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
	refs int
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// groupEntry is the local membership of one backplane group: the
// connections on this process plus the subscription feeding them.
type groupEntry struct {
	clients map[*client]bool
	sub     *backplane.Subscription
}

// Hub is the connection registry. It tracks which local websocket
// connections belong to which group, holds exactly one backplane
// subscription per group with local members, and pumps every payload
// arriving on that subscription to the group's local connections.
type Hub struct {
	bp     backplane.Backplane
	mu     sync.RWMutex
	groups map[string]*groupEntry
	conns  map[*websocket.Conn]*client
}

// NewHub creates an empty hub over the given backplane.
func NewHub(bp backplane.Backplane) *Hub {
	return &Hub{
		bp:     bp,
		groups: make(map[string]*groupEntry),
		conns:  make(map[*websocket.Conn]*client),
	}
}

// Join registers a connection in a group. A connection already known
// from another group keeps its client, so all its groups share one
// write lock. The first local member of a group opens the group's
// backplane subscription and starts its pump.
func (h *Hub) Join(group string, conn *websocket.Conn, info ConnInfo) (*client, error) {
	h.mu.Lock()
	cl, known := h.conns[conn]
	if !known {
		cl = &client{conn: conn, info: info}
		h.conns[conn] = cl
	}
	entry, ok := h.groups[group]
	if !ok {
		sub, err := h.bp.Subscribe(group)
		if err != nil {
			if cl.refs == 0 {
				delete(h.conns, conn)
			}
			h.mu.Unlock()
			return nil, err
		}
		entry = &groupEntry{clients: make(map[*client]bool), sub: sub}
		h.groups[group] = entry
		go h.pump(group, sub)
	}
	if !entry.clients[cl] {
		entry.clients[cl] = true
		cl.refs++
	}
	h.mu.Unlock()
	return cl, nil
}

// Leave removes a connection from a group. The last local member
// cancels the group's backplane subscription.
func (h *Hub) Leave(group string, cl *client) {
	var sub *backplane.Subscription
	h.mu.Lock()
	if entry, ok := h.groups[group]; ok && entry.clients[cl] {
		delete(entry.clients, cl)
		cl.refs--
		if cl.refs == 0 {
			delete(h.conns, cl.conn)
		}
		if len(entry.clients) == 0 {
			delete(h.groups, group)
			sub = entry.sub
		}
	}
	h.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// pump forwards every payload from the subscription to the group's
// current local connections. It exits when the subscription is
// cancelled and its channel closes.
func (h *Hub) pump(group string, sub *backplane.Subscription) {
	for payload := range sub.C {
		h.mu.RLock()
		entry, ok := h.groups[group]
		var clients []*client
		if ok {
			clients = make([]*client, 0, len(entry.clients))
			for cl := range entry.clients {
				clients = append(clients, cl)
			}
		}
		h.mu.RUnlock()
		for _, cl := range clients {
			if err := cl.send(payload); err != nil {
				log.Printf("websocket write error conn=%s: %v", cl.info.ConnID, err)
				cl.conn.Close()
				h.Leave(group, cl)
				observability.IncWSEvent(groupKind(group), "ws_error")
			}
		}
	}
}

// CloseRoomUser force-closes every local connection the user has in a
// room's group. Used when the user is kicked so their socket does not
// outlive their membership.
func (h *Hub) CloseRoomUser(roomID int, userID int) {
	group := backplane.RoomGroup(roomID)
	h.mu.RLock()
	entry, ok := h.groups[group]
	var victims []*client
	if ok {
		for cl := range entry.clients {
			if cl.info.UserID == userID {
				victims = append(victims, cl)
			}
		}
	}
	h.mu.RUnlock()
	for _, cl := range victims {
		// Close wakes the handler's read loop, which unregisters.
		cl.conn.Close()
	}
}

// LocalCount reports how many local connections a group has.
func (h *Hub) LocalCount(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.groups[group]
	if !ok {
		return 0
	}
	return len(entry.clients)
}

func groupKind(group string) string {
	for i := 0; i < len(group); i++ {
		if group[i] == '.' {
			return group[:i]
		}
	}
	return group
}
