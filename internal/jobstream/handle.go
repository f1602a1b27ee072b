package jobstream

import (
	"time"
)

// State is the lifecycle state of a job handle.
type State int

const (
	// StateConnecting means a channel is being (re)established.
	StateConnecting State = iota

	// StateOpen means the channel has delivered at least one frame.
	StateOpen

	// StateTerminalComplete means the job reported completion.
	StateTerminalComplete

	// StateTerminalFailed means the job reported a non-retryable error or
	// reconnect attempts ran out.
	StateTerminalFailed

	// StateClosed means the handle was torn down before reaching a terminal state.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateTerminalComplete:
		return "terminal-complete"
	case StateTerminalFailed:
		return "terminal-failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the final job outcomes.
func (s State) IsTerminal() bool {
	return s == StateTerminalComplete || s == StateTerminalFailed
}

// handle is one job's subscription. All fields are guarded by Manager.mu.
type handle struct {
	jobID          string
	subscriptionID string
	tokens         TokenProvider
	callbacks      Callbacks
	autoReconnect  bool

	state   State
	channel Channel

	// generation increments whenever the current channel is replaced or
	// discarded; events tagged with an older generation are dropped.
	generation uint64

	// attempts counts reconnects since the last progress event.
	attempts       int
	lastProgressAt time.Time

	ended       bool
	domainError bool

	timer        Timer
	reconnectSeq uint64
}

// detach stops any pending reconnect and releases the channel, invalidating
// the current generation. The caller closes the returned channel outside the lock.
func (h *handle) detach() Channel {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	ch := h.channel
	h.channel = nil
	h.generation++
	return ch
}

// listener binds a channel generation to its handle.
type listener struct {
	m   *Manager
	h   *handle
	gen uint64
}

func (l *listener) OnFrame(f Frame) {
	l.m.dispatch(l.h, l.gen, f)
}

func (l *listener) OnTransportError(err error) {
	l.m.handleTransportError(l.h, l.gen, err)
}
