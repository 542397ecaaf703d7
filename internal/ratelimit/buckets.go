package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

type keyBucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// Buckets keeps one token bucket per string key, e.g. client IP plus
// route. A bucket starts full.
type Buckets struct {
	mu    sync.Mutex
	m     map[string]*keyBucket
	r     rate.Limit
	b     int
	clock clock.Clock
}

func NewBuckets(r rate.Limit, burst int, clk clock.Clock) *Buckets {
	if clk == nil {
		clk = clock.New()
	}
	return &Buckets{m: make(map[string]*keyBucket), r: r, b: burst, clock: clk}
}

// Allow consumes one token for key and reports whether it was available.
func (b *Buckets) Allow(key string) bool {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	kb, ok := b.m[key]
	if !ok {
		kb = &keyBucket{lim: rate.NewLimiter(b.r, b.b)}
		b.m[key] = kb
	}
	kb.ts = now
	return kb.lim.AllowN(now, 1)
}

// GC drops buckets idle for longer than ttl and returns how many went.
func (b *Buckets) GC(ttl time.Duration) int {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k, v := range b.m {
		if now.Sub(v.ts) > ttl {
			delete(b.m, k)
			n++
		}
	}
	return n
}
