package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eng540/Falsniper/internal/breaker"
	"github.com/eng540/Falsniper/internal/clock"
)

// Limits are the ceilings that force a session rebirth. The site fingerprints
// long-lived sessions, so staying under these keeps workers looking like
// fresh visitors.
type Limits struct {
	MaxAge             time.Duration
	MaxIdle            time.Duration
	MaxCaptchaAttempts int
	MaxFailures        int
}

// Session tracks one worker's browser identity: its age, activity, captcha
// spend, and navigation record. A session never outlives its limits; the
// worker tears it down and starts a new one.
type Session struct {
	id     string
	limits Limits
	clk    clock.Clock

	mu              sync.Mutex
	createdAt       time.Time
	lastAction      time.Time
	captchaAttempts int
	failureStreak   int
	attempts        int
	successes       int
	condemned       string
}

// New starts a fresh session clock.
func New(limits Limits, clk clock.Clock) *Session {
	if clk == nil {
		clk = clock.System()
	}
	now := clk.Now()
	return &Session{
		id:         uuid.NewString()[:8],
		limits:     limits,
		clk:        clk,
		createdAt:  now,
		lastAction: now,
	}
}

// ID returns the short session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Age returns how long the session has existed.
func (s *Session) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk.Now().Sub(s.createdAt)
}

// Idle returns how long since the last recorded action.
func (s *Session) Idle() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk.Now().Sub(s.lastAction)
}

// Touch marks activity without recording a navigation outcome.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAction = s.clk.Now()
}

// RecordNavigation notes a navigation outcome and refreshes the idle clock.
func (s *Session) RecordNavigation(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAction = s.clk.Now()
	s.attempts++
	if ok {
		s.successes++
		s.failureStreak = 0
	} else {
		s.failureStreak++
	}
}

// RecordCaptchaAttempt increments the captcha spend and returns the new count.
func (s *Session) RecordCaptchaAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAction = s.clk.Now()
	s.captchaAttempts++
	return s.captchaAttempts
}

// Condemn marks the session for teardown regardless of ceilings.
func (s *Session) Condemn(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.condemned == "" {
		s.condemned = reason
	}
}

// NeedsRebirth reports whether the session must be replaced and why.
func (s *Session) NeedsRebirth() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.condemned != "" {
		return s.condemned, true
	}
	now := s.clk.Now()
	if age := now.Sub(s.createdAt); s.limits.MaxAge > 0 && age >= s.limits.MaxAge {
		return fmt.Sprintf("age %s exceeded max %s", age.Round(time.Second), s.limits.MaxAge), true
	}
	if idle := now.Sub(s.lastAction); s.limits.MaxIdle > 0 && idle >= s.limits.MaxIdle {
		return fmt.Sprintf("idle %s exceeded max %s", idle.Round(time.Second), s.limits.MaxIdle), true
	}
	if s.limits.MaxCaptchaAttempts > 0 && s.captchaAttempts >= s.limits.MaxCaptchaAttempts {
		return fmt.Sprintf("captcha attempts %d reached ceiling", s.captchaAttempts), true
	}
	if s.limits.MaxFailures > 0 && s.failureStreak >= s.limits.MaxFailures {
		return fmt.Sprintf("failure streak %d reached ceiling", s.failureStreak), true
	}
	return "", false
}

// Health penalties. Each consecutive failure costs 20 points; a tripped
// circuit costs 30, a probing one 15.
const (
	failurePenalty       = 20
	circuitOpenPenalty   = 30
	circuitHalfOpenGrace = 15
)

// HealthScore folds the session's navigation record and the shared circuit
// state into a 0-100 score. Navigation timeouts shrink once this drops below
// the configured degraded threshold.
func (s *Session) HealthScore(circuit breaker.State) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 100
	if s.attempts > 0 {
		rate = (100 * s.successes) / s.attempts
	}
	score := rate - failurePenalty*s.failureStreak
	switch circuit {
	case breaker.Open:
		score -= circuitOpenPenalty
	case breaker.HalfOpen:
		score -= circuitHalfOpenGrace
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Counters returns cumulative navigation and captcha counts for stats.
func (s *Session) Counters() (attempts, successes, captchaAttempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, s.successes, s.captchaAttempts
}
