package engine

import "sync"

// Stats aggregates counters across all workers for one engine run. Every
// method is safe for concurrent use.
type Stats struct {
	mu             sync.Mutex
	cycles         int
	scans          int
	daysFound      int
	slotsFound     int
	targetsFound   int
	claims         int
	captchaSolved  int
	captchaFailed  int
	submitAttempts int
	rebirths       int
}

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	Cycles         int
	Scans          int
	DaysFound      int
	SlotsFound     int
	TargetsFound   int
	Claims         int
	CaptchaSolved  int
	CaptchaFailed  int
	SubmitAttempts int
	Rebirths       int
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
}

func (s *Stats) RecordScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
}

func (s *Stats) RecordDaysFound(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daysFound += n
}

func (s *Stats) RecordSlotsFound(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotsFound += n
}

func (s *Stats) RecordTargetFound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetsFound++
}

func (s *Stats) RecordClaim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
}

func (s *Stats) RecordCaptchaSolved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captchaSolved++
}

func (s *Stats) RecordCaptchaFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captchaFailed++
}

func (s *Stats) RecordSubmitAttempts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitAttempts += n
}

func (s *Stats) RecordRebirth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebirths++
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Cycles:         s.cycles,
		Scans:          s.scans,
		DaysFound:      s.daysFound,
		SlotsFound:     s.slotsFound,
		TargetsFound:   s.targetsFound,
		Claims:         s.claims,
		CaptchaSolved:  s.captchaSolved,
		CaptchaFailed:  s.captchaFailed,
		SubmitAttempts: s.submitAttempts,
		Rebirths:       s.rebirths,
	}
}
