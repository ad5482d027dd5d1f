package networking

import (
	"sync"
	"time"
)

// DefaultInboundBytesPerSecond is generous for a turn-per-keypress client;
// only floods exceed it.
const DefaultInboundBytesPerSecond = 64 * 1024

// InboundBudget is a per-session token bucket over received bytes. Transports
// consult it before decoding so a flooding peer cannot starve the loop.
type InboundBudget struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	refill   float64
	now      func() time.Time
	denied   int64
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewInboundBudget constructs a budget refilling at bytesPerSecond with a one
// second burst.
func NewInboundBudget(bytesPerSecond float64, clock func() time.Time) *InboundBudget {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultInboundBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &InboundBudget{
		buckets:  make(map[string]*bucket),
		capacity: bytesPerSecond,
		refill:   bytesPerSecond,
		now:      clock,
	}
}

// Allow charges n received bytes to a session and reports whether they fit.
func (b *InboundBudget) Allow(sessionKey string, n int) bool {
	if b == nil || sessionKey == "" || n <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	bk := b.buckets[sessionKey]
	if bk == nil {
		//1.- New sessions start with a full bucket.
		bk = &bucket{tokens: b.capacity, last: now}
		b.buckets[sessionKey] = bk
	}
	//2.- Refill for the elapsed time, ignoring clock skew.
	if elapsed := now.Sub(bk.last).Seconds(); elapsed > 0 {
		bk.tokens += elapsed * b.refill
		if bk.tokens > b.capacity {
			bk.tokens = b.capacity
		}
		bk.last = now
	}
	//3.- Charge or refuse.
	if float64(n) > bk.tokens {
		b.denied++
		return false
	}
	bk.tokens -= float64(n)
	return true
}

// Forget drops the bucket of a closed session.
func (b *InboundBudget) Forget(sessionKey string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.buckets, sessionKey)
	b.mu.Unlock()
}

// Denied returns how many reads were refused.
func (b *InboundBudget) Denied() int64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.denied
}
