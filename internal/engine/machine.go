package engine

import (
	"errors"
	"fmt"
)

// State is one step of the booking flow.
type State int

const (
	StateInit State = iota
	StateDiscover
	StateClaimDay
	StateClaimSlot
	StateFormReady
	StateFormFill
	StateFormSubmit
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDiscover:
		return "discover"
	case StateClaimDay:
		return "claim_day"
	case StateClaimSlot:
		return "claim_slot"
	case StateFormReady:
		return "form_ready"
	case StateFormFill:
		return "form_fill"
	case StateFormSubmit:
		return "form_submit"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidTransition flags a state change the booking flow does not allow.
var ErrInvalidTransition = errors.New("engine: invalid state transition")

// validTransitions is the closed transition table. FormReady is the point of
// no return: nothing at or past it may go back to a pre-form state; failure
// paths from there end in StateFailed.
var validTransitions = map[State][]State{
	StateInit:       {StateDiscover},
	StateDiscover:   {StateClaimDay, StateFailed},
	StateClaimDay:   {StateClaimSlot, StateDiscover, StateFailed},
	StateClaimSlot:  {StateFormReady, StateDiscover, StateFailed},
	StateFormReady:  {StateFormFill, StateFailed},
	StateFormFill:   {StateFormSubmit, StateFailed},
	StateFormSubmit: {StateSuccess, StateFailed},
	StateFailed:     {StateDiscover},
	StateSuccess:    {},
}

// Machine tracks one worker's position in the booking flow and rejects
// transitions the flow does not allow. It is owned by a single worker
// goroutine and needs no locking.
type Machine struct {
	state State
}

// NewMachine starts a machine at StateInit.
func NewMachine() *Machine {
	return &Machine{state: StateInit}
}

// State returns the current position in the flow.
func (m *Machine) State() State {
	return m.state
}

// To moves the machine to next, rejecting transitions outside the table.
func (m *Machine) To(next State) error {
	for _, allowed := range validTransitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
}

// Fail forces the machine into StateFailed from any state but StateSuccess.
// Used when a cycle aborts outside the normal flow (panic, condemned
// session) and the machine has to be terminalized before rebirth.
func (m *Machine) Fail() {
	if m.state == StateSuccess {
		return
	}
	m.state = StateFailed
}

// Reset returns the machine to StateInit for a fresh session. Resets are
// rejected between FormReady and FormSubmit: a claim that crossed the point
// of no return must finish in StateSuccess or StateFailed first.
func (m *Machine) Reset() error {
	if m.PastPointOfNoReturn() {
		return fmt.Errorf("%w: reset during %s", ErrInvalidTransition, m.state)
	}
	m.state = StateInit
	return nil
}

// PastPointOfNoReturn reports whether the machine sits at or beyond
// FormReady with the claim still undecided.
func (m *Machine) PastPointOfNoReturn() bool {
	switch m.state {
	case StateFormReady, StateFormFill, StateFormSubmit:
		return true
	default:
		return false
	}
}

// Terminal reports whether the flow has finished for the current target.
func (m *Machine) Terminal() bool {
	return m.state == StateSuccess || m.state == StateFailed
}
