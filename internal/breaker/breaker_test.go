package breaker_test

import (
	"testing"
	"time"

	"github.com/eng540/Falsniper/internal/breaker"
	"github.com/eng540/Falsniper/internal/clock"
	"github.com/eng540/Falsniper/internal/logging"
)

func testSettings() breaker.Settings {
	return breaker.Settings{
		MaxFailures:  3,
		ResetTimeout: 60 * time.Second,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
	}
}

func newBreaker(t *testing.T) (*breaker.Breaker, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC))
	return breaker.New(testSettings(), clk, logging.NewNop()), clk
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b, _ := newBreaker(t)

	if !b.Allow() {
		t.Fatal("expected closed circuit to allow")
	}
	b.Failure(breaker.ClassTimeout)
	b.Failure(breaker.ClassConnection)
	if b.State() != breaker.Closed {
		t.Fatalf("expected closed after 2 failures, got %s", b.State())
	}
	b.Failure(breaker.ClassTimeout)
	if b.State() != breaker.Open {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("expected open circuit to reject")
	}
	if b.ConsecutiveFailures() != 3 {
		t.Fatalf("unexpected failure streak: %d", b.ConsecutiveFailures())
	}
}

func TestHalfOpenAfterResetTimeout(t *testing.T) {
	b, clk := newBreaker(t)
	for i := 0; i < 3; i++ {
		b.Failure(breaker.ClassTimeout)
	}

	clk.Advance(30 * time.Second)
	if b.Allow() {
		t.Fatal("expected rejection 30s into a 60s cooldown")
	}

	clk.Advance(31 * time.Second)
	if !b.Allow() {
		t.Fatal("expected half-open probe after cooldown")
	}
	// Only one probe at a time.
	if b.Allow() {
		t.Fatal("expected second probe to be rejected while first in flight")
	}

	b.Success()
	if b.State() != breaker.Closed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
	if !b.Allow() {
		t.Fatal("expected closed circuit to allow")
	}
	if b.ConsecutiveFailures() != 0 {
		t.Fatalf("expected streak reset, got %d", b.ConsecutiveFailures())
	}
}

func TestFailedProbeReopensCircuit(t *testing.T) {
	b, clk := newBreaker(t)
	for i := 0; i < 3; i++ {
		b.Failure(breaker.ClassTimeout)
	}

	clk.Advance(61 * time.Second)
	if !b.Allow() {
		t.Fatal("expected half-open probe")
	}
	b.Failure(breaker.ClassConnection)

	if b.State() != breaker.Open {
		t.Fatalf("expected re-opened circuit, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("expected rejection right after failed probe")
	}

	// Cooldown restarts from the probe failure.
	clk.Advance(59 * time.Second)
	if b.Allow() {
		t.Fatal("expected rejection before fresh cooldown elapses")
	}
	clk.Advance(2 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe after fresh cooldown")
	}
}

func TestDelayGrowsExponentiallyWithJitter(t *testing.T) {
	b, _ := newBreaker(t)
	settings := testSettings()

	expected := settings.BaseDelay
	for i := 0; i < 8; i++ {
		for trial := 0; trial < 20; trial++ {
			d := b.Delay()
			lo := time.Duration(float64(expected) * 0.8)
			hi := time.Duration(float64(expected) * 1.2)
			if d < lo || d > hi {
				t.Fatalf("failures=%d delay %v outside [%v, %v]", i, d, lo, hi)
			}
		}
		b.Failure(breaker.ClassOther)
		expected = expected * 2
		if expected > settings.MaxDelay {
			expected = settings.MaxDelay
		}
	}
}

func TestSuccessResetsStreakAndStats(t *testing.T) {
	b, _ := newBreaker(t)
	b.Failure(breaker.ClassTimeout)
	b.Failure(breaker.ClassConnection)
	b.Success()
	if b.ConsecutiveFailures() != 0 {
		t.Fatalf("expected streak reset, got %d", b.ConsecutiveFailures())
	}

	stats := b.Snapshot()
	if stats.Attempts != 3 || stats.Successes != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Timeouts != 1 || stats.ConnectionErrors != 1 || stats.OtherErrors != 0 {
		t.Fatalf("unexpected class counts: %+v", stats)
	}
	if stats.State != breaker.Closed {
		t.Fatalf("unexpected state: %s", stats.State)
	}
}
