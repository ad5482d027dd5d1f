package simulation

import (
	"context"
	"time"
)

// DefaultPollInterval bounds how long one iteration waits for network input.
const DefaultPollInterval = 5 * time.Millisecond

// StepFunc advances every game once.
type StepFunc func()

// PollFunc waits up to the given duration for input and dispatches whatever
// arrived. It must return promptly once the context is cancelled.
type PollFunc func(ctx context.Context, wait time.Duration)

// Loop drives the cooperative server loop: step, then poll with a bounded
// wait, so ticks keep flowing with no network traffic.
type Loop struct {
	poll     time.Duration
	stepFunc StepFunc
	pollFunc PollFunc
	monitor  *TickMonitor
	done     chan struct{}
}

// NewLoop configures a loop. A nil monitor disables tick timing.
func NewLoop(poll time.Duration, step StepFunc, wait PollFunc, monitor *TickMonitor) *Loop {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if step == nil {
		step = func() {}
	}
	if wait == nil {
		wait = func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
		}
	}
	return &Loop{poll: poll, stepFunc: step, pollFunc: wait, monitor: monitor}
}

// Run blocks until the context is cancelled.
func (l *Loop) Run(ctx context.Context) {
	if l == nil {
		return
	}
	for ctx.Err() == nil {
		l.Iterate(ctx)
	}
}

// Iterate performs a single step followed by one bounded poll.
func (l *Loop) Iterate(ctx context.Context) {
	//1.- Advance simulation state and time it.
	started := time.Now()
	l.stepFunc()
	l.monitor.Observe(time.Since(started))
	//2.- Drain input for at most one poll interval.
	l.pollFunc(ctx, l.poll)
}

// Start runs the loop on its own goroutine until the context is cancelled.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		l.Run(ctx)
	}()
}

// Wait blocks until a loop started with Start has exited.
func (l *Loop) Wait() {
	if l == nil || l.done == nil {
		return
	}
	<-l.done
}

// PollInterval exposes the configured wait bound.
func (l *Loop) PollInterval() time.Duration {
	if l == nil {
		return 0
	}
	return l.poll
}
