package listener

import "sync/atomic"

// RunState is the coarse liveness of a listener.
type RunState int32

const (
	NotStarted RunState = iota
	Running
	Stopped
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "not started"
	}
}

// Phase is the connection state machine owned by the worker:
// Connecting -> Authenticating -> Streaming -> {Stopped | Failed}.
// Stopped and Failed are terminal.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseAuthenticating
	PhaseStreaming
	PhaseStopped
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseStreaming:
		return "streaming"
	case PhaseStopped:
		return "stopped"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseStopped || p == PhaseFailed
}

// stateCell holds the shared RunState and Phase. Before Start only the
// caller writes; after a successful Start only the worker writes. Readers may
// observe a value that is stale by up to one poll interval.
type stateCell struct {
	run   atomic.Int32
	phase atomic.Int32
}

func (c *stateCell) runState() RunState { return RunState(c.run.Load()) }
func (c *stateCell) setRun(s RunState)  { c.run.Store(int32(s)) }
func (c *stateCell) current() Phase     { return Phase(c.phase.Load()) }

// advance moves to next unless the current phase is already terminal.
func (c *stateCell) advance(next Phase) bool {
	for {
		cur := c.phase.Load()
		if Phase(cur).Terminal() {
			return false
		}
		if c.phase.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}
