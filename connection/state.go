package connection

import (
	"fmt"
	"sync"
)

// State is a connection's position in its lifecycle. States advance
// monotonically; Disconnected is terminal.
type State uint8

// Connection states, in the order a healthy connection passes through
// them.
const (
	Pending State = iota
	Connecting
	Connected
	Disconnecting
	Disconnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	case Disconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Kind identifies the role a connection plays, used to decide which
// options apply (e.g. inactivity timeouts are meaningless for transfer
// connections, which are naturally bursty).
type Kind uint8

// Connection kinds.
const (
	KindServer Kind = iota
	KindPeerMessage
	KindPeerTransfer
	KindDistributed
	KindIncoming
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindServer:
		return "Server"
	case KindPeerMessage:
		return "PeerMessage"
	case KindPeerTransfer:
		return "PeerTransfer"
	case KindDistributed:
		return "Distributed"
	case KindIncoming:
		return "Incoming"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// stateMachine guards State transitions with a monotonic ordering check:
// a transition is only valid if it moves strictly forward, and once
// Disconnected is reached no further transition is possible.
type stateMachine struct {
	mu    sync.Mutex
	state State
}

// current returns the state under lock.
func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// compareAndTransition moves to next only if the machine is currently in
// from and next is a strictly later state than from (or from ==
// Disconnected, matching Disconnect's own idempotent call site). Returns
// whether the transition was applied.
func (m *stateMachine) compareAndTransition(from, next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return false
	}
	if next < m.state || (next == m.state && next != Disconnected) {
		return false
	}
	m.state = next
	return true
}

// forceTransition moves directly to next regardless of the current
// state, provided the machine has not already reached Disconnected.
// Used for immediate failure transitions (e.g. dial errors) where there
// is no meaningful intermediate state to compare from.
func (m *stateMachine) forceTransition(next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disconnected {
		return false
	}
	m.state = next
	return true
}
