package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/offline"
)

// SessionService runs the per-connection lifecycle of the gateway. The
// transport registers a connection with the hub before Open and
// unregisters it before Close.
type SessionService struct {
	hub      Hub
	presence *PresenceService
	typing   *TypingService
	messages *MessageService
	queue    *offline.Queue
}

func NewSessionService(hub Hub, presence *PresenceService, typing *TypingService, messages *MessageService, queue *offline.Queue) *SessionService {
	return &SessionService{
		hub:      hub,
		presence: presence,
		typing:   typing,
		messages: messages,
		queue:    queue,
	}
}

// Open marks the user online and replays their offline queue to c in
// enqueue order. It returns the number of replayed events.
func (s *SessionService) Open(ctx context.Context, c Conn, deviceID string) int {
	s.presence.Connect(ctx, c.UserID(), deviceID)

	entries := s.queue.Drain(c.UserID())
	replayed := 0
	for _, e := range entries {
		if !c.Send(e.Outbound()) {
			break
		}
		replayed++
	}
	if replayed < len(entries) {
		// Connection went away mid-replay: keep what was not sent.
		for _, e := range entries[replayed:] {
			s.queue.Enqueue(c.UserID(), e.Outbound())
		}
	}
	if len(entries) > 0 {
		log.Info().Int64("user_id", c.UserID()).Int("replayed", replayed).Int("queued", len(entries)).Msg("session: offline queue drained")
	}
	return replayed
}

// Close runs after c left the hub. rooms are the conversations c had
// joined. Typing indicators of the user end in every room where no other
// connection of the user remains. When c was the user's last connection
// the user goes offline and their rate window is dropped.
func (s *SessionService) Close(ctx context.Context, c Conn, deviceID string, rooms []int64) {
	for _, convID := range rooms {
		if !s.hub.UserInRoom(convID, c.UserID()) {
			s.typing.Clear(convID, c.UserID())
		}
	}
	if s.hub.IsOnline(c.UserID()) {
		s.presence.Touch(ctx, c.UserID())
		return
	}
	if !s.presence.Disconnect(ctx, c.UserID(), deviceID) {
		return
	}
	s.typing.ClearUser(c.UserID())
	s.messages.ResetSender(c.UserID())
}
