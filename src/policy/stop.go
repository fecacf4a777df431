package policy

import (
	"time"

	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/mosaicnetworks/iterum/src/net"
)

// latch makes a stop decision permanent.
type latch struct {
	fired bool
}

func (l *latch) set(v bool) bool {
	l.fired = l.fired || v
	return l.fired
}

// StopAfterTime stops once the run time exceeds Duration.
type StopAfterTime struct {
	Duration time.Duration `mapstructure:"duration"`
	latch
}

// ShouldStop implements engine.StopPolicy.
func (s *StopAfterTime) ShouldStop(iteration uint64, elapsed time.Duration) bool {
	return s.set(elapsed > s.Duration)
}

// StopAfterIterations stops once N iterations have completed.
type StopAfterIterations struct {
	N uint64 `mapstructure:"iterations"`
	latch
}

// ShouldStop implements engine.StopPolicy.
func (s *StopAfterIterations) ShouldStop(iteration uint64, elapsed time.Duration) bool {
	return s.set(iteration >= s.N)
}

// StopOnConvergence stops when the outbound message has moved by at most
// Tolerance for Patience consecutive iterations. It only sees the local
// state, so it detects that this node has settled, not that the network has.
type StopOnConvergence struct {
	Tolerance float64 `mapstructure:"tolerance"`
	Patience  int     `mapstructure:"patience"`

	calm int
	latch
}

// ObserveShift implements engine.ShiftObserver.
func (s *StopOnConvergence) ObserveShift(previous, candidate net.Message) {
	if net.LinfShift(previous, candidate) <= s.Tolerance {
		s.calm++
	} else {
		s.calm = 0
	}
}

// ShouldStop implements engine.StopPolicy.
func (s *StopOnConvergence) ShouldStop(iteration uint64, elapsed time.Duration) bool {
	patience := s.Patience
	if patience < 1 {
		patience = 1
	}
	return s.set(s.calm >= patience)
}

// StopAny stops as soon as one of its policies does. Every policy is asked on
// every iteration so that each one keeps its own state current.
type StopAny struct {
	Policies []engine.StopPolicy
	latch
}

// NewStopAny ...
func NewStopAny(policies ...engine.StopPolicy) *StopAny {
	return &StopAny{Policies: policies}
}

// ObserveShift implements engine.ShiftObserver.
func (s *StopAny) ObserveShift(previous, candidate net.Message) {
	for _, p := range s.Policies {
		if so, ok := p.(engine.ShiftObserver); ok {
			so.ObserveShift(previous, candidate)
		}
	}
}

// ShouldStop implements engine.StopPolicy.
func (s *StopAny) ShouldStop(iteration uint64, elapsed time.Duration) bool {
	stop := false
	for _, p := range s.Policies {
		if p.ShouldStop(iteration, elapsed) {
			stop = true
		}
	}
	return s.set(stop)
}
