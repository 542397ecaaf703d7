// Package ratelimit provides per-sender sliding windows for chat sends
// and keyed token buckets for HTTP endpoints.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// window holds the times of the last accepted sends of one key in a ring.
type window struct {
	times []time.Time
	head  int
	n     int
	ts    time.Time
}

// Limiter allows at most `limit` events for each key inside any span of
// `window`. Rejected events are not counted.
type Limiter struct {
	mu     sync.Mutex
	m      map[int64]*window
	limit  int
	window time.Duration
	clock  clock.Clock
}

func New(limit int, win time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{
		m:      make(map[int64]*window),
		limit:  limit,
		window: win,
		clock:  clk,
	}
}

// Allow records one event for key and reports whether fewer than limit
// events fell inside (now-window, now] before it.
func (l *Limiter) Allow(key int64) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.m[key]
	if !ok {
		w = &window{times: make([]time.Time, l.limit)}
		l.m[key] = w
	}
	w.ts = now

	if w.n < l.limit {
		w.times[(w.head+w.n)%l.limit] = now
		w.n++
		return true
	}
	if now.Sub(w.times[w.head]) < l.window {
		return false
	}
	w.times[w.head] = now
	w.head = (w.head + 1) % l.limit
	return true
}

// Reset forgets the window of key.
func (l *Limiter) Reset(key int64) {
	l.mu.Lock()
	delete(l.m, key)
	l.mu.Unlock()
}

// GC drops windows idle for longer than ttl and returns how many went.
func (l *Limiter) GC(ttl time.Duration) int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, v := range l.m {
		if now.Sub(v.ts) > ttl {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
