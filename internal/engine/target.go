package engine

import (
	"context"
	"sync"
	"time"

	"github.com/eng540/Falsniper/internal/clock"
)

// Target is a day page the scout found open slots behind. Holding a Target
// reserves nothing; the server resolves races at submit time.
type Target struct {
	DayURL       string
	FoundBy      string
	DiscoveredAt time.Time
}

// Board hands one discovered target from the scout to the attackers.
// Single writer, one consumer per publish; a target left on the board past
// its TTL is dropped on the next read.
type Board struct {
	ttl time.Duration
	clk clock.Clock

	mu     sync.Mutex
	target *Target
	signal chan struct{}
}

// NewBoard builds an empty board. A nil clk falls back to the system clock.
func NewBoard(ttl time.Duration, clk clock.Clock) *Board {
	if clk == nil {
		clk = clock.System()
	}
	return &Board{ttl: ttl, clk: clk, signal: make(chan struct{})}
}

// Publish replaces the board contents and wakes every waiting attacker.
func (b *Board) Publish(t Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.DiscoveredAt.IsZero() {
		t.DiscoveredAt = b.clk.Now()
	}
	b.target = &t
	close(b.signal)
	b.signal = make(chan struct{})
}

// Consume takes the target off the board. A stale target is discarded and
// reported as absent.
func (b *Board) Consume() (Target, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.target
	if t == nil {
		return Target{}, false
	}
	b.target = nil
	if b.ttl > 0 && b.clk.Now().Sub(t.DiscoveredAt) > b.ttl {
		return Target{}, false
	}
	return *t, true
}

// Peek returns the current target without taking it. Stale targets are
// dropped here too.
func (b *Board) Peek() (Target, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.target == nil {
		return Target{}, false
	}
	if b.ttl > 0 && b.clk.Now().Sub(b.target.DiscoveredAt) > b.ttl {
		b.target = nil
		return Target{}, false
	}
	return *b.target, true
}

// Wait blocks until a target is published, the timeout passes, or ctx ends.
// It reports whether a target may be present; the caller still has to
// Consume and can lose that race to another attacker.
func (b *Board) Wait(ctx context.Context, timeout time.Duration) bool {
	b.mu.Lock()
	if b.target != nil {
		b.mu.Unlock()
		return true
	}
	signal := b.signal
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-signal:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Clear drops whatever is on the board.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = nil
}
