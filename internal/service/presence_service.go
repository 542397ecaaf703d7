package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/events"
	"github.com/sevans717/aphila-sub004/internal/metrics"
)

const presenceStripes = 64

// PresenceService tracks online/away/offline state, persists it and fans
// every change out to the user's accepted relationships.
//
// Transitions of one user are serialized by a striped lock so that a
// disconnect racing a reconnect cannot leave a connected user offline.
type PresenceService struct {
	repo          domain.PresenceRepository
	relationships domain.RelationshipRepository
	hub           Hub
	clock         clock.Clock
	staleAfter    time.Duration

	stripes [presenceStripes]sync.Mutex

	mu    sync.RWMutex
	cache map[int64]domain.Presence
}

func NewPresenceService(
	repo domain.PresenceRepository,
	relationships domain.RelationshipRepository,
	hub Hub,
	clk clock.Clock,
	staleAfter time.Duration,
) *PresenceService {
	if clk == nil {
		clk = clock.New()
	}
	return &PresenceService{
		repo:          repo,
		relationships: relationships,
		hub:           hub,
		clock:         clk,
		staleAfter:    staleAfter,
		cache:         make(map[int64]domain.Presence),
	}
}

func (s *PresenceService) lock(userID int64) func() {
	m := &s.stripes[uint64(userID)%presenceStripes]
	m.Lock()
	return m.Unlock
}

// SetPresence records a new status for userID and notifies their peers.
// Only an invalid status is reported as an error; store failures are
// logged and the in-process state still changes.
func (s *PresenceService) SetPresence(ctx context.Context, userID int64, status domain.PresenceStatus, deviceID string) (*domain.Presence, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown presence status %q", domain.ErrInvalidInput, status)
	}
	defer s.lock(userID)()
	return s.setLocked(ctx, userID, status, deviceID), nil
}

func (s *PresenceService) setLocked(ctx context.Context, userID int64, status domain.PresenceStatus, deviceID string) *domain.Presence {
	p := domain.Presence{
		UserID:       userID,
		Status:       status,
		LastActivity: s.clock.Now().UTC(),
		DeviceID:     deviceID,
		IsActive:     status == domain.PresenceOnline,
	}
	s.store(ctx, &p)
	s.fanOut(ctx, p)
	return &p
}

func (s *PresenceService) store(ctx context.Context, p *domain.Presence) {
	s.mu.Lock()
	s.cache[p.UserID] = *p
	s.mu.Unlock()

	if err := s.repo.Upsert(ctx, p); err != nil {
		log.Error().Err(fmt.Errorf("%w: %v", domain.ErrPresenceWriteFailed, err)).
			Int64("user_id", p.UserID).Str("status", string(p.Status)).Msg("presence: write failed")
	}
}

// fanOut sends presence_update to every online accepted peer. The cost is
// linear in the number of relationships.
func (s *PresenceService) fanOut(ctx context.Context, p domain.Presence) {
	peers, err := s.relationships.ListAcceptedPeerIDs(ctx, p.UserID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", p.UserID).Msg("presence: load relationships failed")
		return
	}
	ev := events.PresenceUpdate(events.PresenceUpdatePayload{
		UserID:       p.UserID,
		Status:       string(p.Status),
		LastActivity: p.LastActivity,
		IsActive:     p.IsActive,
	})
	for _, peer := range peers {
		s.hub.SendToUser(peer, ev)
	}
}

// Connect marks the user online. Called after the connection has been
// registered with the hub.
func (s *PresenceService) Connect(ctx context.Context, userID int64, deviceID string) {
	defer s.lock(userID)()
	s.setLocked(ctx, userID, domain.PresenceOnline, deviceID)
}

// Disconnect marks the user offline unless another of their connections
// is still registered. Called after the connection left the hub. It
// reports whether the user went offline.
func (s *PresenceService) Disconnect(ctx context.Context, userID int64, deviceID string) bool {
	defer s.lock(userID)()
	if s.hub.IsOnline(userID) {
		return false
	}
	s.setLocked(ctx, userID, domain.PresenceOffline, deviceID)
	return true
}

// Touch refreshes the user's last activity. A user found offline (for
// instance swept while idle) is brought back online with a fan-out.
func (s *PresenceService) Touch(ctx context.Context, userID int64) {
	defer s.lock(userID)()
	cur, err := s.lookup(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("presence: touch lookup failed")
	}
	if cur == nil || cur.Status == domain.PresenceOffline {
		deviceID := ""
		if cur != nil {
			deviceID = cur.DeviceID
		}
		s.setLocked(ctx, userID, domain.PresenceOnline, deviceID)
		return
	}
	cur.LastActivity = s.clock.Now().UTC()
	s.store(ctx, cur)
}

// Get returns the cached record, falling back to the store.
func (s *PresenceService) Get(ctx context.Context, userID int64) (*domain.Presence, error) {
	return s.lookup(ctx, userID)
}

func (s *PresenceService) lookup(ctx context.Context, userID int64) (*domain.Presence, error) {
	s.mu.RLock()
	p, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return &p, nil
	}
	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	return rec, nil
}

// SweepStale forces offline every non-offline record whose last activity
// is older than the staleness window. Users that still hold a live
// connection get their activity refreshed instead. Candidates come from
// both the store and the in-process cache, so the sweep still works while
// the store rejects writes. It returns the number of users flipped.
func (s *PresenceService) SweepStale(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.staleAfter)

	candidates := make(map[int64]string)
	stale, listErr := s.repo.ListStale(ctx, cutoff)
	for _, p := range stale {
		candidates[p.UserID] = p.DeviceID
	}
	s.mu.RLock()
	for id, p := range s.cache {
		if p.Status != domain.PresenceOffline && p.LastActivity.Before(cutoff) {
			candidates[id] = p.DeviceID
		}
	}
	s.mu.RUnlock()

	flipped := 0
	for userID, deviceID := range candidates {
		if ctx.Err() != nil {
			break
		}
		if s.sweepOne(ctx, userID, deviceID, cutoff) {
			flipped++
		}
	}
	metrics.PresenceSwept.Add(float64(flipped))

	if listErr != nil {
		return flipped, fmt.Errorf("list stale presence: %w", listErr)
	}
	return flipped, nil
}

func (s *PresenceService) sweepOne(ctx context.Context, userID int64, deviceID string, cutoff time.Time) bool {
	unlock := s.lock(userID)
	if s.hub.IsOnline(userID) {
		unlock()
		s.Touch(ctx, userID)
		return false
	}
	defer unlock()

	// Activity may have moved since the candidate list was built.
	s.mu.RLock()
	cur, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok && (cur.Status == domain.PresenceOffline || !cur.LastActivity.Before(cutoff)) {
		return false
	}
	s.setLocked(ctx, userID, domain.PresenceOffline, deviceID)
	log.Info().Int64("user_id", userID).Msg("presence: stale record forced offline")
	return true
}

// CanView reports whether viewerID may read userID's presence: users see
// themselves and their accepted relationships.
func (s *PresenceService) CanView(ctx context.Context, viewerID, userID int64) (bool, error) {
	if viewerID == userID {
		return true, nil
	}
	peers, err := s.relationships.ListAcceptedPeerIDs(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load relationships: %w", err)
	}
	return slices.Contains(peers, viewerID), nil
}
