package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
	"github.com/sevans717/aphila-sub004/internal/security"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// MessageView is a stored message with its content decrypted.
type MessageView struct {
	ID             int64             `json:"id"`
	ConversationID int64             `json:"conversationId"`
	SenderID       int64             `json:"senderId"`
	ReceiverID     int64             `json:"receiverId"`
	Content        string            `json:"content"`
	Type           string            `json:"type"`
	CreatedAt      time.Time         `json:"createdAt"`
	ReadAt         *time.Time        `json:"readAt,omitempty"`
	Sender         events.SenderInfo `json:"sender"`
}

// HistoryService reads conversations back from the durable store. Clients
// catch up through it after a reconnect; the offline queue only holds what
// arrived while they were away.
type HistoryService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
	rooms         *RoomService
	encryptor     *security.Encryptor
}

func NewHistoryService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	rooms *RoomService,
	encryptor *security.Encryptor,
) *HistoryService {
	return &HistoryService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		rooms:         rooms,
		encryptor:     encryptor,
	}
}

// List returns up to limit messages in chronological order. A positive
// beforeID pages back from that message. Only participants of an active
// conversation may read it.
func (s *HistoryService) List(ctx context.Context, viewerID, conversationID, beforeID int64, limit int) ([]*MessageView, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: load conversation: %v", domain.ErrPersistenceFailed, err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	if _, err := s.rooms.Authorize(ctx, conv.ID, viewerID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	msgs, err := s.messages.ListForConversation(ctx, conv.ID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}
	// Store returns newest first.
	slices.Reverse(msgs)
	return s.views(ctx, msgs), nil
}

// Get returns one message to its sender or receiver, e.g. when a push
// notification is opened.
func (s *HistoryService) Get(ctx context.Context, viewerID, messageID int64) (*MessageView, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}
	if m.IsDeleted {
		return nil, domain.ErrNotFound
	}
	if m.SenderID != viewerID && m.ReceiverID != viewerID {
		return nil, domain.ErrNotAuthorized
	}
	return s.views(ctx, []*domain.Message{m})[0], nil
}

func (s *HistoryService) views(ctx context.Context, msgs []*domain.Message) []*MessageView {
	names := make(map[int64]string)
	out := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		content, err := s.encryptor.Decrypt(m.Content)
		if err != nil {
			log.Warn().Err(err).Int64("message_id", m.ID).Msg("history: content not decryptable")
		}
		name, ok := names[m.SenderID]
		if !ok {
			if u, err := s.users.GetByID(ctx, m.SenderID); err == nil && u != nil {
				name = u.Username
			}
			names[m.SenderID] = name
		}
		out = append(out, &MessageView{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			ReceiverID:     m.ReceiverID,
			Content:        content,
			Type:           string(m.Type),
			CreatedAt:      m.CreatedAt,
			ReadAt:         m.ReadAt,
			Sender:         events.SenderInfo{ID: m.SenderID, Username: name},
		})
	}
	return out
}
