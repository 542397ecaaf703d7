package service_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/offline"
	"github.com/sevans717/aphila-sub004/internal/push"
	"github.com/sevans717/aphila-sub004/internal/ratelimit"
	"github.com/sevans717/aphila-sub004/internal/security"
	"github.com/sevans717/aphila-sub004/internal/service"
	"github.com/sevans717/aphila-sub004/internal/store/sqlite"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendToUser(ctx context.Context, userID int64, n push.Notification) bool {
	return m.Called(ctx, userID, n).Bool(0)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListForConversation(ctx context.Context, conversationID, beforeID int64, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, beforeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkReadInConversation(ctx context.Context, conversationID, readerID int64, readAt time.Time) ([]int64, error) {
	args := m.Called(ctx, conversationID, readerID, readAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

const (
	testRateLimit = 3
	staleAfter    = 5 * time.Minute
	typingTimeout = 3 * time.Second
)

// fixture wires every service against a fake hub, a mock clock and an
// in-memory sqlite store.
type fixture struct {
	db       *sql.DB
	clock    *clock.Mock
	hub      *fakeHub
	presRepo *memPresence
	peers    staticPeers
	queue    *offline.Queue
	notifier *MockNotifier
	enc      *security.Encryptor

	presence *service.PresenceService
	rooms    *service.RoomService
	messages *service.MessageService
	typing   *service.TypingService
	sessions *service.SessionService
}

type fixtureOption func(*fixtureDeps)

type fixtureDeps struct {
	messages domain.MessageRepository
}

func withMessageRepo(r domain.MessageRepository) fixtureOption {
	return func(d *fixtureDeps) { d.messages = r }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		db:       testDB(t),
		clock:    clock.NewMock(),
		hub:      newHub(),
		presRepo: newMemPresence(),
		peers:    staticPeers{},
		notifier: new(MockNotifier),
	}
	f.clock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	deps := fixtureDeps{messages: sqlite.NewMessageRepo(f.db)}
	for _, o := range opts {
		o(&deps)
	}

	var err error
	f.queue, err = offline.New(100, 1000, f.clock)
	require.NoError(t, err)
	f.enc, err = security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)
	convs := sqlite.NewConversationRepo(f.db)

	f.presence = service.NewPresenceService(f.presRepo, f.peers, f.hub, f.clock, staleAfter)
	f.rooms = service.NewRoomService(convs, f.hub)
	f.messages = service.NewMessageService(convs, deps.messages, f.enc,
		ratelimit.New(testRateLimit, time.Minute, f.clock), f.hub, f.queue, f.notifier, f.clock)
	f.typing = service.NewTypingService(f.hub, f.clock, typingTimeout)
	f.sessions = service.NewSessionService(f.hub, f.presence, f.typing, f.messages, f.queue)
	t.Cleanup(f.messages.Wait)
	return f
}

// connect registers a connection and runs the open hook like the gateway.
func (f *fixture) connect(t *testing.T, id string, userID int64) *fakeConn {
	t.Helper()
	c := newConn(id, userID)
	f.hub.register(c)
	f.sessions.Open(context.Background(), c, id)
	return c
}

func (f *fixture) disconnect(c *fakeConn) {
	c.close()
	rooms := f.hub.unregister(c)
	f.sessions.Close(context.Background(), c, c.ID(), rooms)
}

func (f *fixture) join(t *testing.T, c *fakeConn, conversationID int64) {
	t.Helper()
	require.NoError(t, f.rooms.Join(context.Background(), c, conversationID))
}

func (f *fixture) messageCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n))
	return n
}
