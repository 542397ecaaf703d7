package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
)

func TestSession_DisconnectResetsRateWindow(t *testing.T) {
	f := newFixture(t)
	alice := seedUser(t, f.db, "alice")
	bob := seedUser(t, f.db, "bob")
	conv := seedConversation(t, f.db, alice.ID, bob.ID, domain.ConversationActive)
	f.connect(t, "b1", bob.ID)
	a := f.connect(t, "a1", alice.ID)

	for i := 0; i < testRateLimit; i++ {
		_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi"})
		require.NoError(t, err)
	}
	f.disconnect(a)

	a = f.connect(t, "a2", alice.ID)
	_, err := f.messages.Send(context.Background(), alice, a, events.SendMessage{ConversationID: conv.ID, Content: "hi"})
	assert.NoError(t, err)
}

func TestSession_ReplayPreservesOrder(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		f.queue.Enqueue(5, events.UserTyping(int64(i), 9))
	}
	c := f.connect(t, "c1", 5)

	var convs []int64
	for _, ev := range c.events() {
		if ev.Event == events.KindUserTyping {
			convs = append(convs, ev.Data.(events.TypingPayload).ConversationID)
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, convs)
	assert.Zero(t, f.queue.Len(5))
}
