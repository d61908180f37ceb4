package session

import "sync"

// Status is the client's belief about the server-side session.
type Status int

const (
	StatusUnknown Status = iota // No check performed since login, or checks inconclusive
	StatusValid
	StatusInvalid // Terminal until Reset
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	}
	return "unknown"
}

// State is a snapshot of the state machine.
type State struct {
	Status   Status
	Notified bool // The user has been told the session ended
}

// StateMachine holds Status crossed with the notified latch. All transitions
// are explicit methods; nothing else mutates it.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset starts a fresh session after login.
func (m *StateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Status: StatusUnknown}
}

// MarkValid records a successful identity check. Ignored once invalid.
func (m *StateMachine) MarkValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status == StatusInvalid {
		return false
	}
	m.state.Status = StatusValid
	return true
}

// MarkUnverified drops a valid session back to unknown after repeated
// inconclusive checks.
func (m *StateMachine) MarkUnverified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusValid {
		return false
	}
	m.state.Status = StatusUnknown
	return true
}

// Expire moves to invalid and sets the latch. It reports whether this call
// set the latch, i.e. whether the caller owns the user notification.
func (m *StateMachine) Expire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := !m.state.Notified
	m.state = State{Status: StatusInvalid, Notified: true}
	return first
}
