package ws

import (
	"sync"

	"github.com/sevans717/aphila-sub004/internal/events"
	"github.com/sevans717/aphila-sub004/internal/metrics"
	"github.com/sevans717/aphila-sub004/internal/service"
)

type connSet map[service.Conn]struct{}

// Hub tracks live connections by user and by conversation room. A user is
// online while their connection set is non-empty, so a second device keeps
// the user online when the first disconnects.
type Hub struct {
	mu    sync.RWMutex
	users map[int64]connSet
	rooms map[int64]connSet
	// joined is the reverse index used to clean rooms on unregister.
	joined map[service.Conn]map[int64]struct{}
}

var _ service.Hub = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		users:  make(map[int64]connSet),
		rooms:  make(map[int64]connSet),
		joined: make(map[service.Conn]map[int64]struct{}),
	}
}

// Register adds a connection for its user. It reports whether this is the
// user's first live connection.
func (h *Hub) Register(c service.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[c.UserID()]
	if !ok {
		set = make(connSet)
		h.users[c.UserID()] = set
		metrics.OnlineUsers.Inc()
	}
	if _, dup := set[c]; !dup {
		set[c] = struct{}{}
		metrics.WsConnections.Inc()
	}
	return !ok
}

// Unregister removes a connection from its user and from every room it
// joined. It returns the rooms it left and whether the user has no
// connection left.
func (h *Hub) Unregister(c service.Conn) (rooms []int64, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for convID := range h.joined[c] {
		h.leaveLocked(convID, c)
		rooms = append(rooms, convID)
	}
	delete(h.joined, c)

	set, ok := h.users[c.UserID()]
	if !ok {
		return rooms, true
	}
	if _, member := set[c]; member {
		delete(set, c)
		metrics.WsConnections.Dec()
	}
	if len(set) == 0 {
		delete(h.users, c.UserID())
		metrics.OnlineUsers.Dec()
		return rooms, true
	}
	return rooms, false
}

func (h *Hub) Join(conversationID int64, c service.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(connSet)
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}

	rooms, ok := h.joined[c]
	if !ok {
		rooms = make(map[int64]struct{})
		h.joined[c] = rooms
	}
	rooms[conversationID] = struct{}{}
}

func (h *Hub) Leave(conversationID int64, c service.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, c)
	delete(h.joined[c], conversationID)
}

func (h *Hub) leaveLocked(conversationID int64, c service.Conn) {
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

func (h *Hub) IsMember(conversationID int64, c service.Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

func (h *Hub) UserInRoom(conversationID, userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// Online returns the number of users with at least one connection.
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// BroadcastToRoom sends ev to every room member except the connections of
// exceptUserID. Sends happen outside the lock; a full client buffer drops
// that client, not the broadcast.
func (h *Hub) BroadcastToRoom(conversationID int64, ev events.Outbound, exceptUserID int64) int {
	h.mu.RLock()
	targets := make([]service.Conn, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if exceptUserID != 0 && c.UserID() == exceptUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return sendAll(targets, ev)
}

func (h *Hub) SendToUser(userID int64, ev events.Outbound) int {
	h.mu.RLock()
	targets := make([]service.Conn, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return sendAll(targets, ev)
}

func sendAll(targets []service.Conn, ev events.Outbound) int {
	n := 0
	for _, c := range targets {
		if c.Send(ev) {
			n++
		}
	}
	return n
}
