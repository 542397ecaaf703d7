package service

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
)

type typingKey struct {
	conversationID int64
	userID         int64
}

type typingEntry struct {
	timer *clock.Timer
	gen   uint64
}

// TypingService relays typing indicators inside rooms. An indicator that
// is not refreshed or stopped expires after the timeout and is announced
// as stopped.
type TypingService struct {
	hub     Hub
	clock   clock.Clock
	timeout time.Duration

	mu     sync.Mutex
	active map[typingKey]*typingEntry
	gen    uint64
}

func NewTypingService(hub Hub, clk clock.Clock, timeout time.Duration) *TypingService {
	if clk == nil {
		clk = clock.New()
	}
	return &TypingService{
		hub:     hub,
		clock:   clk,
		timeout: timeout,
		active:  make(map[typingKey]*typingEntry),
	}
}

// Start marks c's user as typing. The first start is broadcast to the
// other room members; repeated starts only re-arm the expiry.
func (s *TypingService) Start(c Conn, conversationID int64) error {
	if !s.hub.IsMember(conversationID, c) {
		return domain.ErrNotAuthorized
	}
	key := typingKey{conversationID: conversationID, userID: c.UserID()}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	e, already := s.active[key]
	if already {
		e.timer.Stop()
	} else {
		e = &typingEntry{}
		s.active[key] = e
	}
	e.gen = gen
	e.timer = s.clock.AfterFunc(s.timeout, func() { s.expire(key, gen) })
	s.mu.Unlock()

	if !already {
		s.hub.BroadcastToRoom(conversationID, events.UserTyping(conversationID, key.userID), key.userID)
	}
	return nil
}

// Stop clears c's typing indicator and announces it.
func (s *TypingService) Stop(c Conn, conversationID int64) error {
	if !s.hub.IsMember(conversationID, c) {
		return domain.ErrNotAuthorized
	}
	s.clear(conversationID, c.UserID())
	s.hub.BroadcastToRoom(conversationID, events.UserStoppedTyping(conversationID, c.UserID()), c.UserID())
	return nil
}

// Clear drops the indicator of userID in one room, announcing it only if
// it was active.
func (s *TypingService) Clear(conversationID, userID int64) {
	if s.clear(conversationID, userID) {
		s.hub.BroadcastToRoom(conversationID, events.UserStoppedTyping(conversationID, userID), userID)
	}
}

func (s *TypingService) clear(conversationID, userID int64) bool {
	key := typingKey{conversationID: conversationID, userID: userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.active[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.active, key)
	return true
}

func (s *TypingService) expire(key typingKey, gen uint64) {
	s.mu.Lock()
	e, ok := s.active[key]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.active, key)
	s.mu.Unlock()

	s.hub.BroadcastToRoom(key.conversationID, events.UserStoppedTyping(key.conversationID, key.userID), key.userID)
}

// ClearUser drops every indicator of userID, announcing each as stopped.
func (s *TypingService) ClearUser(userID int64) {
	var cleared []int64
	s.mu.Lock()
	for key, e := range s.active {
		if key.userID != userID {
			continue
		}
		e.timer.Stop()
		delete(s.active, key)
		cleared = append(cleared, key.conversationID)
	}
	s.mu.Unlock()

	for _, convID := range cleared {
		s.hub.BroadcastToRoom(convID, events.UserStoppedTyping(convID, userID), userID)
	}
}

// Active reports whether userID is currently typing in the conversation.
func (s *TypingService) Active(conversationID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[typingKey{conversationID: conversationID, userID: userID}]
	return ok
}
