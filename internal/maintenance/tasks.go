package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/offline"
)

// PresenceSweeper is the part of the presence tracker the sweep needs.
type PresenceSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

func PresenceSweep(p PresenceSweeper) Task {
	return Task{Name: "presence_sweep", Run: func(ctx context.Context) error {
		n, err := p.SweepStale(ctx)
		if n > 0 {
			log.Info().Int("users", n).Msg("maintenance: stale presence swept")
		}
		return err
	}}
}

func OfflineQueueExpiry(q *offline.Queue, ttl time.Duration) Task {
	return Task{Name: "offline_queue_expiry", Run: func(context.Context) error {
		if n := q.Prune(ttl); n > 0 {
			log.Info().Int("entries", n).Msg("maintenance: expired offline entries dropped")
		}
		return nil
	}}
}

// IdleCollector drops per-key limiter state not used for ttl.
type IdleCollector interface {
	GC(ttl time.Duration) int
}

func RateLimiterGC(name string, l IdleCollector, idle time.Duration) Task {
	return Task{Name: name, Run: func(context.Context) error {
		if n := l.GC(idle); n > 0 {
			log.Debug().Str("limiter", name).Int("keys", n).Msg("maintenance: idle rate limiters dropped")
		}
		return nil
	}}
}
