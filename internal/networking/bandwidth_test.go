package networking

import (
	"testing"
	"time"
)

func TestInboundBudgetRefills(t *testing.T) {
	current := time.Unix(0, 0)
	budget := NewInboundBudget(100, func() time.Time { return current })

	if !budget.Allow("udp:1", 60) {
		t.Fatalf("expected initial burst to be allowed")
	}
	if budget.Allow("udp:1", 50) {
		t.Fatalf("expected read to be refused while tokens depleted")
	}
	if !budget.Allow("udp:2", 100) {
		t.Fatalf("sessions must not share a bucket")
	}

	current = current.Add(500 * time.Millisecond)
	if !budget.Allow("udp:1", 50) {
		t.Fatalf("expected read to pass after partial refill")
	}
	if budget.Denied() != 1 {
		t.Fatalf("expected one refusal, got %d", budget.Denied())
	}
}

func TestInboundBudgetForgetResetsBucket(t *testing.T) {
	current := time.Unix(0, 0)
	budget := NewInboundBudget(10, func() time.Time { return current })
	budget.Allow("tcp:1", 10)
	budget.Forget("tcp:1")
	if !budget.Allow("tcp:1", 10) {
		t.Fatalf("forgotten session should start with a full bucket")
	}
	var nilBudget *InboundBudget
	if !nilBudget.Allow("x", 1<<20) {
		t.Fatalf("nil budget must allow everything")
	}
}
