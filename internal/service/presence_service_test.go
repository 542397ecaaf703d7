package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
)

func lastPresence(t *testing.T, c *fakeConn) events.PresenceUpdatePayload {
	t.Helper()
	ev, ok := c.last(events.KindPresenceUpdate)
	require.True(t, ok, "no presence_update received")
	return ev.Data.(events.PresenceUpdatePayload)
}

func TestPresence_FanOutToAcceptedPeers(t *testing.T) {
	f := newFixture(t)
	f.peers[1] = []int64{2, 3}
	f.peers[2] = []int64{1}

	friend := f.connect(t, "f1", 2)
	stranger := f.connect(t, "s1", 4)

	f.connect(t, "u1", 1)

	got := lastPresence(t, friend)
	assert.Equal(t, int64(1), got.UserID)
	assert.Equal(t, "online", got.Status)
	assert.True(t, got.IsActive)
	assert.Zero(t, stranger.count(events.KindPresenceUpdate))
	assert.Equal(t, domain.PresenceOnline, f.presRepo.status(1))
	// Presence updates are never queued for offline peers.
	assert.Zero(t, f.queue.Len(3))
}

func TestPresence_SetPresence(t *testing.T) {
	f := newFixture(t)
	f.peers[1] = []int64{2}
	friend := f.connect(t, "f1", 2)
	f.connect(t, "u1", 1)

	p, err := f.presence.SetPresence(context.Background(), 1, domain.PresenceAway, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceAway, p.Status)
	assert.False(t, p.IsActive)
	assert.Equal(t, "away", lastPresence(t, friend).Status)

	_, err = f.presence.SetPresence(context.Background(), 1, "busy", "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.PresenceAway, f.presRepo.status(1))
}

func TestPresence_MultiDevice(t *testing.T) {
	f := newFixture(t)
	f.peers[1] = []int64{2}
	friend := f.connect(t, "f1", 2)

	phone := f.connect(t, "phone", 1)
	laptop := f.connect(t, "laptop", 1)

	f.disconnect(phone)
	assert.Equal(t, domain.PresenceOnline, f.presRepo.status(1))
	assert.Equal(t, "online", lastPresence(t, friend).Status)

	f.disconnect(laptop)
	assert.Equal(t, domain.PresenceOffline, f.presRepo.status(1))
	assert.Equal(t, "offline", lastPresence(t, friend).Status)
}

func TestPresence_WriteFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.peers[1] = []int64{2}
	friend := f.connect(t, "f1", 2)
	f.presRepo.setFail(true)

	p, err := f.presence.SetPresence(context.Background(), 1, domain.PresenceOnline, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, p.Status)
	assert.Equal(t, "online", lastPresence(t, friend).Status)

	cached, err := f.presence.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, cached.Status)
}

func TestPresence_SweepStale(t *testing.T) {
	f := newFixture(t)
	f.peers[1] = []int64{4}
	watcher := f.connect(t, "w1", 4)

	// User 1 went quiet without a clean disconnect; user 2 is idle but
	// still connected.
	_, err := f.presence.SetPresence(context.Background(), 1, domain.PresenceOnline, "d1")
	require.NoError(t, err)
	f.connect(t, "d2", 2)

	f.clock.Add(staleAfter + time.Minute)
	// User 3 became active inside the window.
	_, err = f.presence.SetPresence(context.Background(), 3, domain.PresenceOnline, "d3")
	require.NoError(t, err)

	flipped, err := f.presence.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)
	assert.Equal(t, domain.PresenceOffline, f.presRepo.status(1))
	assert.Equal(t, domain.PresenceOnline, f.presRepo.status(2))
	assert.Equal(t, domain.PresenceOnline, f.presRepo.status(3))
	assert.Equal(t, "offline", lastPresence(t, watcher).Status)

	p2, err := f.presence.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().UTC(), p2.LastActivity)

	// Nothing left to flip.
	flipped, err = f.presence.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, flipped)
}

func TestPresence_SweepNeverFlipsFreshRecords(t *testing.T) {
	f := newFixture(t)
	_, err := f.presence.SetPresence(context.Background(), 1, domain.PresenceOnline, "d1")
	require.NoError(t, err)

	f.clock.Add(staleAfter - time.Second)
	flipped, err := f.presence.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, flipped)
	assert.Equal(t, domain.PresenceOnline, f.presRepo.status(1))
}

func TestPresence_SweepWorksWhileStoreIsDown(t *testing.T) {
	f := newFixture(t)
	_, err := f.presence.SetPresence(context.Background(), 1, domain.PresenceOnline, "d1")
	require.NoError(t, err)
	f.presRepo.setFail(true)

	f.clock.Add(staleAfter + time.Second)
	flipped, err := f.presence.SweepStale(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, flipped)

	p, err := f.presence.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, p.Status)
}

func TestPresence_TouchRevivesOfflineUser(t *testing.T) {
	f := newFixture(t)
	f.peers[1] = []int64{2}
	friend := f.connect(t, "f1", 2)
	_, err := f.presence.SetPresence(context.Background(), 1, domain.PresenceOffline, "d1")
	require.NoError(t, err)

	f.presence.Touch(context.Background(), 1)
	assert.Equal(t, domain.PresenceOnline, f.presRepo.status(1))
	assert.Equal(t, "online", lastPresence(t, friend).Status)
}

func TestPresence_CanView(t *testing.T) {
	f := newFixture(t)
	f.peers[1] = []int64{2}

	for _, tc := range []struct {
		viewer, target int64
		want           bool
	}{
		{1, 1, true},
		{2, 1, true},
		{3, 1, false},
	} {
		got, err := f.presence.CanView(context.Background(), tc.viewer, tc.target)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "viewer %d target %d", tc.viewer, tc.target)
	}
}
