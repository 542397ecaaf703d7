// Package offline buffers ephemeral events for disconnected users.
//
// The queue is lossy by construction: each user holds at most Capacity
// entries (oldest evicted first) and at most MaxUsers users are tracked
// (least recently touched evicted first). Message history after a
// reconnect must come from the durable store, not from here.
package offline

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sevans717/aphila-sub004/internal/events"
)

// Entry is one buffered event.
type Entry struct {
	Event      events.Kind
	Payload    any
	EnqueuedAt time.Time
}

// Outbound rebuilds the wire event of the entry.
func (e Entry) Outbound() events.Outbound {
	return events.Outbound{Event: e.Event, Data: e.Payload}
}

// ring is a fixed-capacity FIFO.
type ring struct {
	buf   []Entry
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Entry, capacity)}
}

// push appends e, overwriting the oldest entry when full. It reports
// whether an entry was evicted.
func (r *ring) push(e Entry) bool {
	if r.count == len(r.buf) {
		r.buf[r.head] = e
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.count)%len(r.buf)] = e
	r.count++
	return false
}

func (r *ring) items() []Entry {
	out := make([]Entry, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// dropBefore removes leading entries enqueued before cutoff.
func (r *ring) dropBefore(cutoff time.Time) int {
	n := 0
	for r.count > 0 && r.buf[r.head].EnqueuedAt.Before(cutoff) {
		r.buf[r.head] = Entry{}
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		n++
	}
	return n
}

type Queue struct {
	mu       sync.Mutex
	users    *lru.Cache[int64, *ring]
	capacity int
	clock    clock.Clock

	// OnEvict is called, outside the lock, for each entry dropped because
	// a user's queue was full.
	OnEvict func(userID int64)
}

func New(capacity, maxUsers int, clk clock.Clock) (*Queue, error) {
	if clk == nil {
		clk = clock.New()
	}
	users, err := lru.New[int64, *ring](maxUsers)
	if err != nil {
		return nil, err
	}
	return &Queue{users: users, capacity: capacity, clock: clk}, nil
}

// Enqueue appends an event to the user's queue.
func (q *Queue) Enqueue(userID int64, ev events.Outbound) {
	e := Entry{Event: ev.Event, Payload: ev.Data, EnqueuedAt: q.clock.Now()}

	q.mu.Lock()
	r, ok := q.users.Get(userID)
	if !ok {
		r = newRing(q.capacity)
		q.users.Add(userID, r)
	}
	evicted := r.push(e)
	q.mu.Unlock()

	if evicted && q.OnEvict != nil {
		q.OnEvict(userID)
	}
}

// Drain returns the user's entries in enqueue order and clears the queue.
func (q *Queue) Drain(userID int64) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.users.Peek(userID)
	if !ok {
		return nil
	}
	q.users.Remove(userID)
	return r.items()
}

// Len returns the number of entries buffered for userID.
func (q *Queue) Len(userID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r, ok := q.users.Peek(userID); ok {
		return r.count
	}
	return 0
}

// Users returns the number of users with a queue.
func (q *Queue) Users() int {
	return q.users.Len()
}

// Prune drops entries older than maxAge and forgets users left empty.
// It returns the number of entries dropped.
func (q *Queue) Prune(maxAge time.Duration) int {
	cutoff := q.clock.Now().Add(-maxAge)

	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := 0
	for _, userID := range q.users.Keys() {
		r, ok := q.users.Peek(userID)
		if !ok {
			continue
		}
		dropped += r.dropBefore(cutoff)
		if r.count == 0 {
			q.users.Remove(userID)
		}
	}
	return dropped
}
