package simulation

import "time"

// Stopwatch measures time between laps. The first lap only arms it so a game
// never sees a spurious jump covering the time before it started ticking.
type Stopwatch struct {
	now     func() time.Time
	last    time.Time
	running bool
}

// NewStopwatch builds a stopwatch on the given clock, time.Now when nil.
func NewStopwatch(clock func() time.Time) *Stopwatch {
	if clock == nil {
		clock = time.Now
	}
	return &Stopwatch{now: clock}
}

// Lap returns the time since the previous lap. It reports false on the arming
// call.
func (s *Stopwatch) Lap() (time.Duration, bool) {
	now := s.now()
	if !s.running {
		s.running = true
		s.last = now
		return 0, false
	}
	elapsed := now.Sub(s.last)
	s.last = now
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, true
}

// Running reports whether the stopwatch has been armed.
func (s *Stopwatch) Running() bool { return s.running }

// Stop disarms the stopwatch; the next lap arms it again.
func (s *Stopwatch) Stop() { s.running = false }

// Interval fires at most once per period, used for periodic housekeeping.
type Interval struct {
	period time.Duration
	next   time.Time
}

// NewInterval returns an interval that is due immediately.
func NewInterval(period time.Duration) *Interval {
	return &Interval{period: period}
}

// Due reports whether the period elapsed and schedules the next firing.
func (i *Interval) Due(now time.Time) bool {
	if i == nil || i.period <= 0 {
		return false
	}
	if now.Before(i.next) {
		return false
	}
	i.next = now.Add(i.period)
	return true
}
