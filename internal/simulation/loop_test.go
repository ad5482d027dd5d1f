package simulation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopStepsWithoutInput(t *testing.T) {
	var ticks int32
	monitor := NewTickMonitor()
	loop := NewLoop(time.Millisecond, func() {
		atomic.AddInt32(&ticks, 1)
		time.Sleep(50 * time.Microsecond)
	}, nil, monitor)
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	loop.Wait()
	if atomic.LoadInt32(&ticks) < 2 {
		t.Fatalf("expected the loop to keep ticking, got %d", ticks)
	}
	if monitor.Snapshot().Samples == 0 {
		t.Fatalf("tick durations should be observed")
	}
}

func TestIterateStepsBeforePolling(t *testing.T) {
	var order []string
	loop := NewLoop(time.Millisecond, func() { order = append(order, "step") }, func(_ context.Context, wait time.Duration) {
		if wait != time.Millisecond {
			t.Fatalf("unexpected poll bound %v", wait)
		}
		order = append(order, "poll")
	}, nil)
	loop.Iterate(context.Background())
	if len(order) != 2 || order[0] != "step" || order[1] != "poll" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestLoopDefaultPollInterval(t *testing.T) {
	if got := NewLoop(0, nil, nil, nil).PollInterval(); got != DefaultPollInterval {
		t.Fatalf("unexpected poll interval %v", got)
	}
}

func TestStopwatchFirstLapArms(t *testing.T) {
	now := time.Unix(100, 0)
	sw := NewStopwatch(func() time.Time { return now })
	if elapsed, ok := sw.Lap(); ok || elapsed != 0 {
		t.Fatalf("first lap must only arm, got %v %v", elapsed, ok)
	}
	now = now.Add(250 * time.Millisecond)
	if elapsed, ok := sw.Lap(); !ok || elapsed != 250*time.Millisecond {
		t.Fatalf("unexpected lap %v %v", elapsed, ok)
	}
	sw.Stop()
	now = now.Add(time.Hour)
	if _, ok := sw.Lap(); ok {
		t.Fatalf("stopped stopwatch should re-arm instead of reporting the gap")
	}
}

func TestIntervalDue(t *testing.T) {
	start := time.Unix(0, 0)
	interval := NewInterval(time.Second)
	if !interval.Due(start) {
		t.Fatalf("interval should be due immediately")
	}
	if interval.Due(start.Add(500 * time.Millisecond)) {
		t.Fatalf("interval fired early")
	}
	if !interval.Due(start.Add(time.Second)) {
		t.Fatalf("interval should fire after one period")
	}
}

func TestTickMonitorSnapshot(t *testing.T) {
	monitor := NewTickMonitor()
	monitor.Observe(10 * time.Millisecond)
	monitor.Observe(30 * time.Millisecond)
	snap := monitor.Snapshot()
	if snap.Samples != 2 || snap.Average != 20*time.Millisecond || snap.Max != 30*time.Millisecond || snap.Last != 30*time.Millisecond {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.AverageFPS() != 50 {
		t.Fatalf("unexpected fps %.2f", snap.AverageFPS())
	}
	monitor.Reset()
	if monitor.Snapshot().Samples != 0 {
		t.Fatalf("reset should clear samples")
	}
}
