package circuitbreaker

import (
	"testing"
	"time"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/testutil"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2026, 2, 23, 4, 0, 0, 0, time.UTC))
	return New(threshold, cooldown).WithClock(clock.Now), clock
}

func tripBreaker(cb *CircuitBreaker, endpoint string, threshold int) {
	for i := 0; i < threshold; i++ {
		cb.RecordFailure(endpoint)
	}
}

func TestAllow_UnknownEndpoint_Allowed(t *testing.T) {
	cb, _ := newTestBreaker(3, 5*time.Second)
	if err := cb.Allow("ftp:ftp.example.com"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb, _ := newTestBreaker(3, 5*time.Second)
	endpoint := "ftp:ftp.example.com"
	cb.RecordFailure(endpoint)
	cb.RecordFailure(endpoint)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb, _ := newTestBreaker(3, 5*time.Second)
	endpoint := "ftp:ftp.example.com"
	tripBreaker(cb, endpoint, 3)
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen, got nil")
	}
}

func TestAllow_OpenAfterCooldown_OneTrialAtATime(t *testing.T) {
	cb, clock := newTestBreaker(3, 5*time.Second)
	endpoint := "web:https://files.example.com"
	tripBreaker(cb, endpoint, 3)
	clock.Advance(5 * time.Second)

	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected trial call allowed after cooldown, got %v", err)
	}
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen while trial call in flight")
	}
}

func TestRecordSuccess_ClosesAfterConsecutiveTrials(t *testing.T) {
	cb, clock := newTestBreaker(3, 5*time.Second)
	endpoint := "web:https://files.example.com"
	tripBreaker(cb, endpoint, 3)
	clock.Advance(5 * time.Second)

	// One success is not recovery; the endpoint stays half-open and keeps
	// serving one call at a time.
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("first trial: %v", err)
	}
	cb.RecordSuccess(endpoint)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("second trial: %v", err)
	}
	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen while second trial in flight")
	}
	cb.RecordSuccess(endpoint)

	// Two consecutive successes close the circuit; calls flow freely again.
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected closed circuit, got %v", err)
	}
}

func TestRecordFailure_HalfOpenReOpens(t *testing.T) {
	cb, clock := newTestBreaker(3, 5*time.Second)
	endpoint := "blob:settlement-drops"
	tripBreaker(cb, endpoint, 3)
	clock.Advance(5 * time.Second)

	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	cb.RecordFailure(endpoint)

	if err := cb.Allow(endpoint); err == nil {
		t.Fatal("expected ErrCircuitOpen after failed trial call")
	}

	// The cooldown restarts from the failed trial, not the original trip.
	clock.Advance(5 * time.Second)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected trial call after renewed cooldown, got %v", err)
	}
}

func TestRecordSuccess_ClosedState_NoOp(t *testing.T) {
	cb, _ := newTestBreaker(3, 5*time.Second)
	endpoint := "ftp:ftp.example.com"
	cb.RecordSuccess(endpoint)
	if err := cb.Allow(endpoint); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIndependentEndpoints(t *testing.T) {
	cb, _ := newTestBreaker(2, 5*time.Second)
	a := "ftp:ftp.a.example.com"
	b := "ftp:ftp.b.example.com"
	tripBreaker(cb, a, 2)
	if err := cb.Allow(a); err == nil {
		t.Fatal("expected first endpoint open")
	}
	if err := cb.Allow(b); err != nil {
		t.Fatalf("expected second endpoint allowed, got %v", err)
	}
}
