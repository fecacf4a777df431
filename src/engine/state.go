package engine

import (
	"sync/atomic"
)

// State captures the lifecycle of an Engine: Constructing, Ready, Running or
// Stopped.
type State uint32

const (
	// Constructing is the state during the handshake.
	Constructing State = iota
	// Ready is the state of a built engine that has not started.
	Ready
	// Running is the state while iterating.
	Running
	// Stopped is terminal.
	Stopped
)

// String ...
func (s State) String() string {
	switch s {
	case Constructing:
		return "Constructing"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// StopReason records why an engine stopped.
type StopReason uint32

const (
	// NotStopped is the reason of an engine that is still going.
	NotStopped StopReason = iota
	// StopPolicyFired means the stop policy returned true.
	StopPolicyFired
	// ResilienceStop means every input died and the resilience policy gave up.
	ResilienceStop
	// ProcessorError means the processor or a publish failed.
	ProcessorError
)

// String ...
func (r StopReason) String() string {
	switch r {
	case NotStopped:
		return "NotStopped"
	case StopPolicyFired:
		return "StopPolicy"
	case ResilienceStop:
		return "ResilienceStop"
	case ProcessorError:
		return "ProcessorError"
	default:
		return "Unknown"
	}
}

type state struct {
	state  State
	reason StopReason
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

func (b *state) getReason() StopReason {
	reasonAddr := (*uint32)(&b.reason)
	return StopReason(atomic.LoadUint32(reasonAddr))
}

func (b *state) setReason(r StopReason) {
	reasonAddr := (*uint32)(&b.reason)
	atomic.StoreUint32(reasonAddr, uint32(r))
}
