package service_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
	"github.com/sevans717/aphila-sub004/internal/service"
	"github.com/sevans717/aphila-sub004/internal/store/sqlite"
)

// fakeConn records every event sent to it.
type fakeConn struct {
	id     string
	userID int64

	mu     sync.Mutex
	sent   []events.Outbound
	closed bool
}

func newConn(id string, userID int64) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string    { return c.id }
func (c *fakeConn) UserID() int64 { return c.userID }

func (c *fakeConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) Send(ev events.Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.sent = append(c.sent, ev)
	return true
}

func (c *fakeConn) events() []events.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Outbound(nil), c.sent...)
}

func (c *fakeConn) kinds() []events.Kind {
	var out []events.Kind
	for _, ev := range c.events() {
		out = append(out, ev.Event)
	}
	return out
}

func (c *fakeConn) last(kind events.Kind) (events.Outbound, bool) {
	evs := c.events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Event == kind {
			return evs[i], true
		}
	}
	return events.Outbound{}, false
}

func (c *fakeConn) count(kind events.Kind) int {
	n := 0
	for _, k := range c.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// fakeHub is an in-memory service.Hub.
type fakeHub struct {
	mu    sync.Mutex
	users map[int64]map[service.Conn]struct{}
	rooms map[int64]map[service.Conn]struct{}
}

var _ service.Hub = (*fakeHub)(nil)

func newHub() *fakeHub {
	return &fakeHub{
		users: make(map[int64]map[service.Conn]struct{}),
		rooms: make(map[int64]map[service.Conn]struct{}),
	}
}

func (h *fakeHub) register(c service.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[c.UserID()]
	if !ok {
		set = make(map[service.Conn]struct{})
		h.users[c.UserID()] = set
	}
	set[c] = struct{}{}
}

func (h *fakeHub) unregister(c service.Conn) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.users[c.UserID()]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID())
		}
	}
	var left []int64
	for convID, room := range h.rooms {
		if _, ok := room[c]; ok {
			delete(room, c)
			left = append(left, convID)
		}
	}
	return left
}

func (h *fakeHub) Join(conversationID int64, c service.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[service.Conn]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
}

func (h *fakeHub) Leave(conversationID int64, c service.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[conversationID], c)
}

func (h *fakeHub) IsMember(conversationID int64, c service.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

func (h *fakeHub) UserInRoom(conversationID, userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[conversationID] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

func (h *fakeHub) BroadcastToRoom(conversationID int64, ev events.Outbound, exceptUserID int64) int {
	h.mu.Lock()
	var targets []service.Conn
	for c := range h.rooms[conversationID] {
		if exceptUserID != 0 && c.UserID() == exceptUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()
	n := 0
	for _, c := range targets {
		if c.Send(ev) {
			n++
		}
	}
	return n
}

func (h *fakeHub) SendToUser(userID int64, ev events.Outbound) int {
	h.mu.Lock()
	var targets []service.Conn
	for c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	n := 0
	for _, c := range targets {
		if c.Send(ev) {
			n++
		}
	}
	return n
}

func (h *fakeHub) IsOnline(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users[userID]) > 0
}

// memPresence is a PresenceRepository that can be switched to fail.
type memPresence struct {
	mu      sync.Mutex
	records map[int64]domain.Presence
	fail    bool
}

var errStoreDown = errors.New("store unavailable")

func newMemPresence() *memPresence {
	return &memPresence{records: make(map[int64]domain.Presence)}
}

func (m *memPresence) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memPresence) Upsert(_ context.Context, p *domain.Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	m.records[p.UserID] = *p
	return nil
}

func (m *memPresence) Get(_ context.Context, userID int64) (*domain.Presence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStoreDown
	}
	p, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memPresence) ListStale(_ context.Context, cutoff time.Time) ([]*domain.Presence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStoreDown
	}
	var out []*domain.Presence
	for _, p := range m.records {
		if p.Status != domain.PresenceOffline && p.LastActivity.Before(cutoff) {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *memPresence) status(userID int64) domain.PresenceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[userID].Status
}

// staticPeers maps a user to their accepted relationships.
type staticPeers map[int64][]int64

func (p staticPeers) ListAcceptedPeerIDs(_ context.Context, userID int64) ([]int64, error) {
	return p[userID], nil
}

// testDB is an in-memory sqlite database with the gateway schema.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, name string) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, HashedPassword: "x", IsActive: true}
	require.NoError(t, sqlite.NewUserRepo(db).Create(context.Background(), u))
	return u
}

func seedConversation(t *testing.T, db *sql.DB, a, b int64, status domain.ConversationStatus) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{User1ID: a, User2ID: b, Status: status}
	require.NoError(t, sqlite.NewConversationRepo(db).Create(context.Background(), c))
	return c
}
