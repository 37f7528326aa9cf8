package schedule

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/eng540/Falsniper/internal/config"
)

// Mode is the hunt pacing mode derived from the clock. Exactly one mode
// applies at any instant.
type Mode string

const (
	// ModePatrol is the default low-frequency scanning cadence.
	ModePatrol Mode = "patrol"
	// ModeWarmup keeps sessions fresh in the minutes before the window.
	ModeWarmup Mode = "warmup"
	// ModePreAttack is the final countdown seconds before the window opens.
	ModePreAttack Mode = "pre_attack"
	// ModeAttack applies while the release window is open.
	ModeAttack Mode = "attack"
)

// Schedule evaluates the attack window against a timezone-anchored clock and
// hands out per-mode sleep durations.
type Schedule struct {
	loc        *time.Location
	timing     config.Timing
	windowLen  time.Duration
	warmupLead time.Duration
}

// New builds a Schedule from timing configuration.
func New(timing config.Timing) (*Schedule, error) {
	loc, err := time.LoadLocation(timing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timing.Timezone, err)
	}
	return &Schedule{
		loc:        loc,
		timing:     timing,
		windowLen:  time.Duration(timing.AttackWindowMinutes) * time.Minute,
		warmupLead: time.Duration(timing.WarmupLeadMinutes) * time.Minute,
	}, nil
}

// windowStart returns the opening instant of the window that is either open
// at t or the next to open after t.
func (s *Schedule) windowStart(t time.Time) time.Time {
	local := t.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), s.timing.AttackHour, 0, 0, 0, s.loc)
	if !local.Before(start.Add(s.windowLen)) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

// ModeAt classifies an instant. Interval edges are half-open so modes never
// overlap: warmup <= t < pre-attack < window <= t < window end.
func (s *Schedule) ModeAt(t time.Time) Mode {
	local := t.In(s.loc)
	start := s.windowStart(t)

	if !local.Before(start) && local.Before(start.Add(s.windowLen)) {
		return ModeAttack
	}

	preStart := start.Add(-time.Hour).
		Add(time.Duration(s.timing.PreAttackMinute) * time.Minute).
		Add(time.Duration(s.timing.PreAttackSecond) * time.Second)
	if !local.Before(preStart) && local.Before(start) {
		return ModePreAttack
	}

	warmupStart := start.Add(-s.warmupLead)
	if !local.Before(warmupStart) && local.Before(preStart) {
		return ModeWarmup
	}

	return ModePatrol
}

// UntilWindow reports how long until the window opens, zero when it is open.
func (s *Schedule) UntilWindow(t time.Time) time.Duration {
	if s.ModeAt(t) == ModeAttack {
		return 0
	}
	return s.windowStart(t).Sub(t.In(s.loc))
}

// WindowOpen reports whether the release window is open at t.
func (s *Schedule) WindowOpen(t time.Time) bool {
	return s.ModeAt(t) == ModeAttack
}

// Location returns the timezone the schedule is anchored to.
func (s *Schedule) Location() *time.Location {
	return s.loc
}

// SleepFor returns the pause a worker should take between actions in the
// given mode. Patrol and attack cadences are jittered inside their configured
// range so workers do not hammer the site in lockstep.
func (s *Schedule) SleepFor(mode Mode) time.Duration {
	switch mode {
	case ModeAttack:
		return randomBetween(s.timing.AttackSleepMinMS, s.timing.AttackSleepMaxMS)
	case ModePreAttack:
		return time.Duration(s.timing.PreAttackSleepMS) * time.Millisecond
	case ModeWarmup:
		return time.Duration(s.timing.WarmupSleepMS) * time.Millisecond
	default:
		return randomBetween(s.timing.PatrolSleepMinMS, s.timing.PatrolSleepMaxMS)
	}
}

func randomBetween(minMS, maxMS int) time.Duration {
	if maxMS <= minMS {
		return time.Duration(minMS) * time.Millisecond
	}
	return time.Duration(minMS+rand.Intn(maxMS-minMS+1)) * time.Millisecond
}
