package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
	"github.com/sevans717/aphila-sub004/internal/metrics"
)

// RoomService admits connections into conversation rooms. A connection
// joins only when its user is a participant of an active conversation.
type RoomService struct {
	conversations domain.ConversationRepository
	hub           Hub
}

func NewRoomService(conversations domain.ConversationRepository, hub Hub) *RoomService {
	return &RoomService{conversations: conversations, hub: hub}
}

// Authorize returns the conversation when userID may use it.
func (s *RoomService) Authorize(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error) {
	conv, err := s.conversations.GetActiveForParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load conversation: %v", domain.ErrPersistenceFailed, err)
	}
	if conv == nil {
		return nil, domain.ErrNotAuthorized
	}
	return conv, nil
}

// Join adds c to the room and confirms with joined_match. On failure c
// gets an error event and room membership is unchanged.
func (s *RoomService) Join(ctx context.Context, c Conn, conversationID int64) error {
	if _, err := s.Authorize(ctx, conversationID, c.UserID()); err != nil {
		metrics.RoomJoins.WithLabelValues("rejected").Inc()
		log.Warn().Err(err).Int64("user_id", c.UserID()).Int64("conversation_id", conversationID).Msg("room: join rejected")
		c.Send(events.Error(events.KindJoinMatch, domain.Reason(err)))
		return err
	}
	s.hub.Join(conversationID, c)
	metrics.RoomJoins.WithLabelValues("joined").Inc()
	c.Send(events.JoinedMatch(conversationID))
	return nil
}

// Leave removes c from the room. Leaving a room never joined is a no-op.
func (s *RoomService) Leave(c Conn, conversationID int64) {
	s.hub.Leave(conversationID, c)
}
