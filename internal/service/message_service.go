package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
	"github.com/sevans717/aphila-sub004/internal/metrics"
	"github.com/sevans717/aphila-sub004/internal/offline"
	"github.com/sevans717/aphila-sub004/internal/push"
	"github.com/sevans717/aphila-sub004/internal/ratelimit"
	"github.com/sevans717/aphila-sub004/internal/security"
)

const previewRunes = 100

// MessageService runs the delivery pipeline of send_message and the read
// receipt flow of mark_read.
type MessageService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	encryptor     *security.Encryptor
	limiter       *ratelimit.Limiter
	hub           Hub
	queue         *offline.Queue
	notifier      push.Notifier
	clock         clock.Clock

	pushes sync.WaitGroup
}

func NewMessageService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	encryptor *security.Encryptor,
	limiter *ratelimit.Limiter,
	hub Hub,
	queue *offline.Queue,
	notifier push.Notifier,
	clk clock.Clock,
) *MessageService {
	if clk == nil {
		clk = clock.New()
	}
	if notifier == nil {
		notifier = push.LogNotifier{}
	}
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		encryptor:     encryptor,
		limiter:       limiter,
		hub:           hub,
		queue:         queue,
		notifier:      notifier,
		clock:         clk,
	}
}

// Send runs one message through rate limit, authorization, persistence,
// broadcast, acknowledgement and (when the receiver is offline) the
// offline queue plus a push notification.
//
// Failures before the message is persisted are answered on c with
// message_error and returned; nothing is broadcast in that case. The push
// notification is sent in the background and never fails the send.
func (s *MessageService) Send(ctx context.Context, sender *domain.User, c Conn, in events.SendMessage) (*domain.Message, error) {
	msg, err := s.persist(ctx, sender, in)
	if err != nil {
		reason := domain.Reason(err)
		metrics.MessagesTotal.WithLabelValues(reason).Inc()
		log.Warn().Err(err).Int64("user_id", sender.ID).Int64("conversation_id", in.ConversationID).Msg("message: rejected")
		c.Send(events.MessageError(reason, in.Nonce))
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("delivered").Inc()

	payload := events.NewMessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Content:        in.Content,
		Type:           string(msg.Type),
		CreatedAt:      msg.CreatedAt,
		Sender:         events.SenderInfo{ID: sender.ID, Username: sender.Username},
	}
	// Room members get the nonce so the sender's other devices can
	// reconcile their optimistic copy.
	inRoom := payload
	inRoom.Nonce = in.Nonce
	s.hub.BroadcastToRoom(msg.ConversationID, events.NewMessage(inRoom), 0)

	receiverOnline := s.hub.IsOnline(msg.ReceiverID)
	if receiverOnline && !s.hub.UserInRoom(msg.ConversationID, msg.ReceiverID) {
		s.hub.SendToUser(msg.ReceiverID, events.NewMessage(payload))
	}

	c.Send(events.MessageAck(events.MessageAckPayload{
		MessageID:   msg.ID,
		Nonce:       in.Nonce,
		DeliveredAt: s.clock.Now().UTC(),
	}))

	if !receiverOnline {
		s.queue.Enqueue(msg.ReceiverID, events.NewMessage(payload))
		note := s.notification(sender, msg, in.Content)
		detached := context.WithoutCancel(ctx)
		s.pushes.Add(1)
		go func() {
			defer s.pushes.Done()
			s.notify(detached, msg, note)
		}()
	}
	return msg, nil
}

func (s *MessageService) persist(ctx context.Context, sender *domain.User, in events.SendMessage) (*domain.Message, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	typ := domain.MessageType(in.Type)
	if typ == "" {
		typ = domain.MessageText
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", domain.ErrInvalidInput, in.Type)
	}

	if !s.limiter.Allow(sender.ID) {
		return nil, domain.ErrRateLimited
	}

	conv, err := s.conversations.GetActiveForParticipant(ctx, in.ConversationID, sender.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load conversation: %v", domain.ErrPersistenceFailed, err)
	}
	if conv == nil {
		return nil, domain.ErrNotAuthorized
	}

	encrypted, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt content: %v", domain.ErrPersistenceFailed, err)
	}
	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		ReceiverID:     conv.OtherParticipant(sender.ID),
		Content:        encrypted,
		Type:           typ,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}
	return msg, nil
}

func (s *MessageService) notification(sender *domain.User, msg *domain.Message, content string) push.Notification {
	return push.Notification{
		Title: sender.Username,
		Body:  Preview(msg.Type, content),
		Data: map[string]string{
			"type":           "new_message",
			"conversationId": strconv.FormatInt(msg.ConversationID, 10),
			"messageId":      strconv.FormatInt(msg.ID, 10),
		},
	}
}

// notify sends the push notification of an undelivered message.
func (s *MessageService) notify(ctx context.Context, msg *domain.Message, note push.Notification) {
	if s.notifier.SendToUser(ctx, msg.ReceiverID, note) {
		metrics.PushTotal.WithLabelValues("sent").Inc()
		return
	}
	metrics.PushTotal.WithLabelValues("failed").Inc()
	log.Warn().Err(domain.ErrDeliveryDegraded).
		Int64("user_id", msg.ReceiverID).Int64("message_id", msg.ID).Msg("message: push notification not delivered")
}

// Preview renders the notification body of a message.
func Preview(t domain.MessageType, content string) string {
	switch t {
	case domain.MessageImage:
		return "Sent a photo"
	case domain.MessageGIF:
		return "Sent a GIF"
	case domain.MessageAudio:
		return "Sent a voice message"
	}
	r := []rune(content)
	if len(r) > previewRunes {
		return string(r[:previewRunes]) + "…"
	}
	return content
}

// MarkRead marks every unread message addressed to reader in the
// conversation as read and notifies the other participant. The returned
// ids are empty when nothing was unread; no event is emitted then.
func (s *MessageService) MarkRead(ctx context.Context, reader *domain.User, conversationID int64) ([]int64, error) {
	conv, err := s.conversations.GetActiveForParticipant(ctx, conversationID, reader.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load conversation: %v", domain.ErrPersistenceFailed, err)
	}
	if conv == nil {
		return nil, domain.ErrNotAuthorized
	}

	readAt := s.clock.Now().UTC()
	ids, err := s.messages.MarkReadInConversation(ctx, conv.ID, reader.ID, readAt)
	if err != nil {
		return nil, fmt.Errorf("%w: mark read: %v", domain.ErrPersistenceFailed, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ev := events.MessagesRead(events.MessagesReadPayload{
		ConversationID: conv.ID,
		ReaderID:       reader.ID,
		ReadAt:         readAt,
		MessageIDs:     ids,
	})
	s.hub.BroadcastToRoom(conv.ID, ev, reader.ID)

	other := conv.OtherParticipant(reader.ID)
	switch {
	case s.hub.UserInRoom(conv.ID, other):
	case s.hub.IsOnline(other):
		s.hub.SendToUser(other, ev)
	default:
		s.queue.Enqueue(other, ev)
	}
	return ids, nil
}

// Wait blocks until every push notification started by Send has finished.
func (s *MessageService) Wait() {
	s.pushes.Wait()
}

// ResetSender forgets the rate-limit window of a user.
func (s *MessageService) ResetSender(userID int64) {
	s.limiter.Reset(userID)
}

// IsClientError reports whether err is caused by the request rather than
// the server.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrNotAuthorized) ||
		errors.Is(err, domain.ErrRateLimited)
}
