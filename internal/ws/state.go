package ws

import "sync/atomic"

// ConnState is the lifecycle position of the shared socket.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	// StateReconnecting is only entered by the transport's own redial loop.
	StateReconnecting
	// StateClosed is terminal; Close was called.
	StateClosed
)

var stateNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "closed"}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// State is an atomically updated ConnState.
type State struct {
	v atomic.Int32
}

func (s *State) Load() ConnState {
	return ConnState(s.v.Load())
}

func (s *State) Store(state ConnState) {
	s.v.Store(int32(state))
}

// Transition moves to next only if the current state is one of from.
func (s *State) Transition(next ConnState, from ...ConnState) bool {
	for _, f := range from {
		if s.v.CompareAndSwap(int32(f), int32(next)) {
			return true
		}
	}
	return false
}
