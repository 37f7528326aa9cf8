package breaker

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/eng540/Falsniper/internal/clock"
	"github.com/eng540/Falsniper/internal/logging"
)

// State is the circuit position.
type State int

const (
	// Closed admits all navigation.
	Closed State = iota
	// Open rejects navigation until the reset timeout elapses.
	Open
	// HalfOpen admits a single probe to test whether the site recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrorClass buckets a navigation failure for the breaker's counters.
type ErrorClass int

const (
	ClassTimeout ErrorClass = iota
	ClassConnection
	ClassOther
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassConnection:
		return "connection"
	default:
		return "other"
	}
}

// Exponent clamp for backoff growth. Delays stop doubling past this many
// consecutive failures; the configured max delay caps the result anyway.
const maxBackoffShift = 6

// Settings configure a Breaker.
type Settings struct {
	MaxFailures  int
	ResetTimeout time.Duration
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// Stats is a point-in-time snapshot for status output and the run journal.
type Stats struct {
	State               State
	ConsecutiveFailures int
	Attempts            uint64
	Successes           uint64
	Timeouts            uint64
	ConnectionErrors    uint64
	OtherErrors         uint64
	OpenedAt            time.Time
}

// Breaker is a shared circuit breaker guarding site navigation. All workers
// report outcomes into one Breaker so a site-wide outage trips everyone at
// once instead of burning sessions one worker at a time.
type Breaker struct {
	settings Settings
	clk      clock.Clock
	logger   *slog.Logger

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	probeInFlight bool
	attempts      uint64
	successes     uint64
	classCounts   [3]uint64
}

// New builds a Breaker. A nil clk falls back to the system clock.
func New(settings Settings, clk clock.Clock, logger *slog.Logger) *Breaker {
	if clk == nil {
		clk = clock.System()
	}
	return &Breaker{
		settings: settings,
		clk:      clk,
		logger:   logging.NewComponentLogger(logger, "breaker"),
	}
}

// Allow reports whether a navigation may proceed. When the circuit is open
// and the reset timeout has elapsed it admits exactly one half-open probe;
// the probe's Success or Failure decides what happens next.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.clk.Now().Sub(b.openedAt) < b.settings.ResetTimeout {
			return false
		}
		b.state = HalfOpen
		b.probeInFlight = true
		b.logger.Info("circuit half-open, admitting probe")
		return true
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// Success records a completed navigation and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++
	b.successes++
	b.failures = 0
	b.probeInFlight = false
	if b.state != Closed {
		b.logger.Info("circuit closed after successful probe")
	}
	b.state = Closed
}

// Failure records a failed navigation under its error class. Enough
// consecutive failures trip the circuit; a failed half-open probe re-opens
// it with a fresh cooldown.
func (b *Breaker) Failure(class ErrorClass) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++
	b.failures++
	b.probeInFlight = false
	if class < ClassTimeout || class > ClassOther {
		class = ClassOther
	}
	b.classCounts[class]++

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = b.clk.Now()
		b.logger.Warn("probe failed, circuit re-opened",
			logging.String("error_class", class.String()),
			logging.Int("consecutive_failures", b.failures))
	case Closed:
		if b.failures >= b.settings.MaxFailures {
			b.state = Open
			b.openedAt = b.clk.Now()
			b.logger.Warn("circuit opened",
				logging.String("error_class", class.String()),
				logging.Int("consecutive_failures", b.failures),
				logging.Duration("reset_timeout", b.settings.ResetTimeout))
		}
	}
}

// State returns the current circuit position, applying the open-to-half-open
// transition if the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.clk.Now().Sub(b.openedAt) >= b.settings.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Delay returns how long the caller should back off before the next attempt:
// exponential in the failure streak, capped, then jittered by up to twenty
// percent in either direction so workers spread out.
func (b *Breaker) Delay() time.Duration {
	b.mu.Lock()
	failures := b.failures
	b.mu.Unlock()
	return backoffDelay(b.settings.BaseDelay, b.settings.MaxDelay, failures)
}

// Snapshot returns breaker statistics.
func (b *Breaker) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		Attempts:            b.attempts,
		Successes:           b.successes,
		Timeouts:            b.classCounts[ClassTimeout],
		ConnectionErrors:    b.classCounts[ClassConnection],
		OtherErrors:         b.classCounts[ClassOther],
		OpenedAt:            b.openedAt,
	}
}

func backoffDelay(base, max time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	shift := failures
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	delay := base << uint(shift)
	if max > 0 && delay > max {
		delay = max
	}
	// ±20% jitter.
	jittered := time.Duration(float64(delay) * (0.8 + 0.4*rand.Float64()))
	return jittered
}
