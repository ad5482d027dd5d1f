package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed step durations.
type TickMetricsSnapshot struct {
	Samples  int
	Average  time.Duration
	Max      time.Duration
	Last     time.Duration
	Overruns int
}

// AverageFPS derives the steps-per-second equivalent of the average step.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the server loop. It is read
// by the admin endpoints while the loop writes to it.
type TickMonitor struct {
	mu       sync.Mutex
	budget   time.Duration
	samples  int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns int
}

// NewTickMonitor constructs an empty monitor without an overrun budget.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// SetBudget counts every step slower than d as an overrun.
func (m *TickMonitor) SetBudget(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.budget = d
	m.mu.Unlock()
}

// Observe records the duration of a completed step.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	//1.- Accumulate the sample count and aggregate duration for averages.
	m.samples++
	m.total += duration
	//2.- Track the worst step and the ones slower than the budget.
	if duration > m.max {
		m.max = duration
	}
	if m.budget > 0 && duration > m.budget {
		m.overruns++
	}
	m.last = duration
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := TickMetricsSnapshot{Samples: m.samples, Max: m.max, Last: m.last, Overruns: m.overruns}
	if m.samples > 0 {
		snap.Average = m.total / time.Duration(m.samples)
	}
	return snap
}

// Reset clears the accumulated statistics.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples, m.total, m.max, m.last, m.overruns = 0, 0, 0, 0, 0
	m.mu.Unlock()
}
