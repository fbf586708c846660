package ovt

import (
	"sync"
	"sync/atomic"
)

// State is a phase of the session lifecycle (spec §4.3).
type State int32

const (
	StateIdle State = iota
	StateConnected
	StateDescribed
	StatePlaying
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnected:
		return "Connected"
	case StateDescribed:
		return "Described"
	case StatePlaying:
		return "Playing"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// sessionState is the single authoritative holder of session phase, shared
// across the handshake and worker contexts (spec §4.3, §9: "state as a
// plain enum shared across contexts" becomes an atomic discriminant plus a
// mutex-guarded last error). All transitions go through transition/forceError
// so the legality check lives in one place.
type sessionState struct {
	state   atomic.Int32
	mu      sync.Mutex
	lastErr error
}

func newSessionState() *sessionState {
	s := &sessionState{}
	s.state.Store(int32(StateIdle))
	return s
}

// get returns the current state. Safe for concurrent use by readers
// (e.g. status queries) that are not the owning context.
func (s *sessionState) get() State {
	return State(s.state.Load())
}

// legalFrom reports whether `to` is a legal transition out of `from`,
// per the graph in spec §4.3.
func legalFrom(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateConnected || to == StateError
	case StateConnected:
		return to == StateDescribed || to == StateError
	case StateDescribed:
		return to == StatePlaying || to == StateError
	case StatePlaying:
		return to == StateStopping || to == StateError
	case StateStopping:
		return to == StateStopped || to == StateError
	case StateError:
		return to == StateStopped
	default:
		return false
	}
}

// transition attempts to move from the current state to `to`, returning
// ErrInvalidState if the edge is not legal. Stopped has no outgoing edge,
// and Error only leaves to Stopped during teardown.
func (s *sessionState) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := State(s.state.Load())
	if !legalFrom(from, to) {
		return ErrInvalidState
	}
	s.state.Store(int32(to))
	return nil
}

// require returns ErrInvalidState if the current state isn't `want`,
// otherwise nil. Used by control operations that are only legal from one
// specific source state (spec §4.3: "rejected with InvalidState if invoked
// outside its expected source state").
func (s *sessionState) require(want State) error {
	if s.get() != want {
		return ErrInvalidState
	}
	return nil
}

// forceError unconditionally moves to Error, recording err for diagnostics.
// Error is absorbing from any state (spec §4.3).
func (s *sessionState) forceError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Store(int32(StateError))
	s.lastErr = err
}

func (s *sessionState) lastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
