package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter allows at most limit calls in any window. Accepted
// calls are kept in a ring so the oldest one decides when the next is due.
type SlidingWindowLimiter struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	ring []time.Time
	next int
	used int
}

// NewSlidingWindowLimiter constructs a limiter; a non-positive window or
// limit disables limiting.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	l := &SlidingWindowLimiter{window: window, now: timeSource}
	if window > 0 && limit > 0 {
		l.ring = make([]time.Time, limit)
	}
	return l
}

// Allow reports whether the caller may proceed and records the call if so.
func (l *SlidingWindowLimiter) Allow() bool {
	if l == nil || len(l.ring) == 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.used == len(l.ring) {
		//1.- The slot about to be reused holds the oldest accepted call.
		if now.Sub(l.ring[l.next]) < l.window {
			return false
		}
		l.used--
	}
	l.ring[l.next] = now
	l.next = (l.next + 1) % len(l.ring)
	l.used++
	return true
}
