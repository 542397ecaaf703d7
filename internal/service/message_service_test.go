package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
	"github.com/sevans717/aphila-sub004/internal/push"
	"github.com/sevans717/aphila-sub004/internal/service"
	"github.com/sevans717/aphila-sub004/internal/store/sqlite"
)

func TestSend_BothInRoom(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)

	a := f.connect(t, "a1", alice.ID)
	b := f.connect(t, "b1", bob.ID)
	f.join(t, a, conv.ID)
	f.join(t, b, conv.ID)

	msg, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{
		ConversationID: conv.ID, Content: "hi", Nonce: "n1",
	})
	require.NoError(t, err)

	ev, ok := b.last(events.KindNewMessage)
	require.True(t, ok)
	payload := ev.Data.(events.NewMessagePayload)
	assert.Equal(t, "hi", payload.Content)
	assert.Equal(t, "n1", payload.Nonce)
	assert.Equal(t, "text", payload.Type)
	assert.Equal(t, "alice", payload.Sender.Username)
	assert.Equal(t, 1, b.count(events.KindNewMessage))

	ack, ok := a.last(events.KindMessageAck)
	require.True(t, ok)
	assert.Equal(t, "n1", ack.Data.(events.MessageAckPayload).Nonce)
	assert.Equal(t, msg.ID, ack.Data.(events.MessageAckPayload).MessageID)
	assert.Equal(t, 1, a.count(events.KindMessageAck))

	stored, err := sqlite.NewMessageRepo(f.db).GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, stored.SenderID)
	assert.Equal(t, bob.ID, stored.ReceiverID)
	assert.NotEqual(t, "hi", stored.Content, "content is encrypted at rest")
	assert.Equal(t, 1, f.messageCount(t))

	f.notifier.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, f.queue.Len(bob.ID))
}

func TestSend_WithoutConversation(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	carol := seedUser(t, f.db, "carol")

	a := f.connect(t, "a1", alice.ID)
	c := f.connect(t, "c1", carol.ID)

	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{
		ConversationID: 999, Content: "hi", Nonce: "n2",
	})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	ev, ok := a.last(events.KindMessageError)
	require.True(t, ok)
	assert.Equal(t, events.MessageErrorPayload{Reason: "not_authorized", Nonce: "n2"}, ev.Data)
	assert.Zero(t, a.count(events.KindMessageAck))
	assert.Zero(t, a.count(events.KindNewMessage))
	assert.Zero(t, c.count(events.KindNewMessage))
	assert.Zero(t, f.messageCount(t))
}

func TestSend_ArchivedConversationRejected(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationArchived)
	a := f.connect(t, "a1", alice.ID)

	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	assert.Zero(t, f.messageCount(t))
}

func TestSend_ReceiverOffline(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)

	f.notifier.On("SendToUser", mock.Anything, bob.ID, push.Notification{
		Title: "alice",
		Body:  "are you there?",
		Data: map[string]string{
			"type":           "new_message",
			"conversationId": "1",
			"messageId":      "1",
		},
	}).Return(true).Once()

	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{
		ConversationID: conv.ID, Content: "are you there?", Nonce: "n3",
	})
	require.NoError(t, err)

	f.messages.Wait()
	f.notifier.AssertExpectations(t)
	assert.Equal(t, 1, f.messageCount(t))
	assert.Equal(t, 1, a.count(events.KindMessageAck))
	assert.Equal(t, 1, f.queue.Len(bob.ID))

	// Reconnecting replays the queued message.
	b := f.connect(t, "b1", bob.ID)
	ev, ok := b.last(events.KindNewMessage)
	require.True(t, ok)
	assert.Equal(t, "are you there?", ev.Data.(events.NewMessagePayload).Content)
	assert.Zero(t, f.queue.Len(bob.ID))
}

func TestSend_PushFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)
	f.notifier.On("SendToUser", mock.Anything, bob.ID, mock.Anything).Return(false)

	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi", Nonce: "n4"})
	require.NoError(t, err)
	f.messages.Wait()
	f.notifier.AssertExpectations(t)
	assert.Equal(t, 1, a.count(events.KindMessageAck))
	assert.Zero(t, a.count(events.KindMessageError))
}

func TestSend_SlowPushDoesNotBlockSender(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)

	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	f.notifier.On("SendToUser", mock.Anything, bob.ID, mock.Anything).Run(func(mock.Arguments) { <-release }).Return(true)

	done := make(chan error, 1)
	go func() {
		_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi", Nonce: "n6"})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("send blocked on the push notifier")
	}
	assert.Equal(t, 1, a.count(events.KindMessageAck))
	assert.Equal(t, 1, f.queue.Len(bob.ID))

	unblock()
	f.messages.Wait()
	f.notifier.AssertNumberOfCalls(t, "SendToUser", 1)
}

func TestSend_ReceiverOnlineOutsideRoom(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)
	b := f.connect(t, "b1", bob.ID)
	f.join(t, a, conv.ID)

	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi", Nonce: "n5"})
	require.NoError(t, err)

	ev, ok := b.last(events.KindNewMessage)
	require.True(t, ok)
	assert.Empty(t, ev.Data.(events.NewMessagePayload).Nonce)
	f.notifier.AssertNotCalled(t, "SendToUser", mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, f.queue.Len(bob.ID))
}

func TestSend_RateLimited(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)
	f.connect(t, "b1", bob.ID)

	for i := 0; i < testRateLimit; i++ {
		_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi"})
		require.NoError(t, err)
	}
	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi", Nonce: "over"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, testRateLimit, f.messageCount(t))

	ev, ok := a.last(events.KindMessageError)
	require.True(t, ok)
	assert.Equal(t, events.MessageErrorPayload{Reason: "rate_limited", Nonce: "over"}, ev.Data)

	// The window still holds every earlier send.
	f.clock.Add(time.Minute/testRateLimit + time.Second)
	_, err = f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, testRateLimit, f.messageCount(t))

	f.clock.Add(time.Minute)
	_, err = f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi"})
	assert.NoError(t, err)
}

func TestSend_InvalidInput(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)

	cases := []events.SendMessage{
		{ConversationID: conv.ID, Content: "", Nonce: "empty"},
		{ConversationID: conv.ID, Content: strings.Repeat("x", events.MaxContentRunes+1), Nonce: "long"},
		{ConversationID: conv.ID, Content: "hi", Type: "video", Nonce: "type"},
	}
	for _, in := range cases {
		_, err := f.messages.Send(context.Background(), alice, a, in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, in.Nonce)
		ev, ok := a.last(events.KindMessageError)
		require.True(t, ok)
		assert.Equal(t, in.Nonce, ev.Data.(events.MessageErrorPayload).Nonce)
	}
	assert.Zero(t, f.messageCount(t))
}

func TestSend_PersistenceFailure(t *testing.T) {
	repo := new(MockMessageRepo)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	f := newFixture(t, withMessageRepo(repo))
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)
	b := f.connect(t, "b1", bob.ID)
	f.join(t, a, conv.ID)
	f.join(t, b, conv.ID)

	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi", Nonce: "n6"})
	assert.ErrorIs(t, err, domain.ErrPersistenceFailed)

	ev, ok := a.last(events.KindMessageError)
	require.True(t, ok)
	assert.Equal(t, "persistence_failed", ev.Data.(events.MessageErrorPayload).Reason)
	assert.Zero(t, a.count(events.KindNewMessage))
	assert.Zero(t, b.count(events.KindNewMessage))
	assert.Zero(t, a.count(events.KindMessageAck))
	repo.AssertExpectations(t)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)
	b := f.connect(t, "b1", bob.ID)
	f.join(t, a, conv.ID)
	f.join(t, b, conv.ID)

	m1, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "one"})
	require.NoError(t, err)
	m2, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "two"})
	require.NoError(t, err)

	ids, err := f.messages.MarkRead(context.Background(), bob, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{m1.ID, m2.ID}, ids)

	ev, ok := a.last(events.KindMessagesRead)
	require.True(t, ok)
	payload := ev.Data.(events.MessagesReadPayload)
	assert.Equal(t, bob.ID, payload.ReaderID)
	assert.Equal(t, []int64{m1.ID, m2.ID}, payload.MessageIDs)
	assert.Zero(t, b.count(events.KindMessagesRead))

	// Nothing left unread: no event.
	ids, err = f.messages.MarkRead(context.Background(), bob, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, a.count(events.KindMessagesRead))
}

func TestMarkRead_SenderOfflineIsQueued(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	a := f.connect(t, "a1", alice.ID)
	b := f.connect(t, "b1", bob.ID)

	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "one"})
	require.NoError(t, err)
	f.disconnect(a)

	_, err = f.messages.MarkRead(context.Background(), bob, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.queue.Len(alice.ID))
	assert.Zero(t, b.count(events.KindMessagesRead))

	_, err = f.messages.MarkRead(context.Background(), &domain.User{ID: 999}, conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello", service.Preview(domain.MessageText, "hello"))
	assert.Equal(t, "Sent a photo", service.Preview(domain.MessageImage, "https://cdn/x.png"))
	assert.Equal(t, "Sent a GIF", service.Preview(domain.MessageGIF, ""))
	assert.Equal(t, "Sent a voice message", service.Preview(domain.MessageAudio, ""))

	long := strings.Repeat("é", 150)
	got := service.Preview(domain.MessageText, long)
	assert.Equal(t, 101, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
