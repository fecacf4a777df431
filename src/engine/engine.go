package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/iterum/src/metrics"
	"github.com/mosaicnetworks/iterum/src/net"
	"github.com/sirupsen/logrus"
)

// ErrNotReady is returned by Run and Step on an engine that was not built, or
// already stopped.
var ErrNotReady = errors.New("engine is not ready")

// Engine drives the iterations of one node. Its type parameters are the four
// capabilities it composes, which lets the compiler dispatch the per iteration
// calls statically.
type Engine[P Processor, U PublishPolicy, S StopPolicy, R ResiliencePolicy] struct {
	state

	name      string
	substrate net.Substrate
	inputs    []string
	outputs   []string

	processor  P
	publish    U
	stop       S
	resilience R

	clock              clock.Clock
	rand               *rand.Rand
	jitterMin          time.Duration
	jitterMax          time.Duration
	resubscribeTimeout time.Duration

	logger  *logrus.Entry
	metrics *metrics.Metrics

	// mu guards everything below, and the processor, against the accessors
	// which may be called from other goroutines.
	mu            sync.Mutex
	neighbors     *NeighborData
	lastPublished net.Message
	lastCandidate net.Message
	iteration     uint64
	start         time.Time
	runTime       time.Duration
}

func newEngine[P Processor, U PublishPolicy, S StopPolicy, R ResiliencePolicy](
	cfg Config[P, U, S, R],
	logger *logrus.Entry,
) *Engine[P, U, S, R] {

	e := &Engine[P, U, S, R]{
		name:               cfg.Name,
		substrate:          cfg.Substrate,
		inputs:             append([]string(nil), cfg.Inputs...),
		outputs:            append([]string(nil), cfg.Outputs...),
		publish:            cfg.Publish,
		stop:               cfg.Stop,
		resilience:         cfg.Resilience,
		clock:              cfg.Clock,
		rand:               cfg.Rand,
		jitterMin:          cfg.PollJitterMin,
		jitterMax:          cfg.PollJitterMax,
		resubscribeTimeout: cfg.ResubscribeTimeout,
		logger:             logger,
		metrics:            cfg.Metrics,
		neighbors:          NewNeighborData(cfg.Inputs),
	}
	e.setState(Constructing)
	return e
}

func (e *Engine[P, U, S, R]) setState(s State) {
	e.state.setState(s)
	if e.metrics != nil {
		e.metrics.State(int(s))
	}
}

// Run iterates until the stop or resilience policy ends the run, or the
// processor fails. observer may be nil.
func (e *Engine[P, U, S, R]) Run(observer Observer) error {
	return e.RunContext(context.Background(), observer)
}

// RunContext is Run with a context that interrupts the pauses between passes.
// An interrupted engine stays Running and can be run again.
func (e *Engine[P, U, S, R]) RunContext(ctx context.Context, observer Observer) error {
	if s := e.getState(); s != Ready && s != Running {
		return ErrNotReady
	}

	e.logger.Info("Run")

	for {
		stopped, err := e.Step(observer)
		if err != nil {
			return err
		}
		if stopped {
			e.logger.WithFields(logrus.Fields{
				"iterations": e.IterationCount(),
				"run_time":   e.RunTime(),
				"reason":     e.StopReason().String(),
			}).Info("Stopped")
			return nil
		}

		if err := sleep(ctx, e.clock, e.jitter()); err != nil {
			return err
		}
	}
}

func (e *Engine[P, U, S, R]) jitter() time.Duration {
	span := e.jitterMax - e.jitterMin
	if span <= 0 {
		return e.jitterMin
	}
	return e.jitterMin + time.Duration(e.rand.Int63n(int64(span)+1))
}

// Step runs one pass of the loop and reports whether the engine has stopped.
// The first Step of a Ready engine starts it. A pass that finds no fresh data
// does not count as an iteration, but the stop policy still sees it.
func (e *Engine[P, U, S, R]) Step(observer Observer) (bool, error) {
	switch e.getState() {
	case Stopped:
		return true, nil
	case Ready:
		e.mu.Lock()
		e.start = e.clock.Now()
		e.mu.Unlock()
		e.setState(Running)
	case Running:
	default:
		return false, ErrNotReady
	}

	batch := e.poll()

	if len(batch) == 0 {
		return e.idle()
	}

	snapshot, err := e.iterate(batch)
	if err != nil {
		e.state.setReason(ProcessorError)
		e.setState(Stopped)
		e.logger.WithError(err).Error("Iteration failed")
		return true, err
	}

	if observer != nil {
		observer(snapshot)
	}

	return e.checkStop(), nil
}

// checkStop asks the stop policy with the current counters and stops the
// engine when it fires.
func (e *Engine[P, U, S, R]) checkStop() bool {
	e.mu.Lock()
	stop := e.stop.ShouldStop(e.iteration, e.runTime)
	e.mu.Unlock()

	if stop {
		e.state.setReason(StopPolicyFired)
		e.setState(Stopped)
	}
	return stop
}

// poll collects fresh data from every input in a fixed order.
func (e *Engine[P, U, S, R]) poll() []Update {
	var batch []Update
	for _, tag := range e.inputs {
		if !e.substrate.HasData(tag) {
			continue
		}
		m, err := e.substrate.Latest(tag)
		if err != nil {
			continue
		}
		e.mu.Lock()
		kept := e.neighbors.Put(tag, m)
		e.mu.Unlock()
		if kept {
			batch = append(batch, Update{Tag: tag, Message: m})
		}
	}
	return batch
}

func (e *Engine[P, U, S, R]) iterate(batch []Update) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.processor.ApplyUpdates(batch); err != nil {
		return Snapshot{}, fmt.Errorf("apply updates: %w", err)
	}
	if e.metrics != nil {
		for _, u := range batch {
			e.metrics.NeighborUpdate(u.Tag)
		}
	}

	candidate := e.processor.PrepareOutbound()

	if so, ok := any(e.stop).(ShiftObserver); ok {
		so.ObserveShift(e.lastCandidate, candidate)
	}
	e.lastCandidate = candidate.Clone()

	published := e.publish.ShouldPublish(e.lastPublished, candidate)
	if published {
		for _, tag := range e.outputs {
			if err := e.substrate.Publish(tag, candidate); err != nil {
				return Snapshot{}, fmt.Errorf("publish %s: %w", tag, err)
			}
		}
		e.lastPublished = candidate.Clone()
	}

	e.iteration++
	e.runTime = e.clock.Since(e.start)

	solution := e.processor.CurrentSolution()

	if e.metrics != nil {
		e.metrics.Published(published)
		e.metrics.Iteration(e.runTime)
		e.metrics.Solution(solution)
	}

	e.logger.WithFields(logrus.Fields{
		"iteration": e.iteration,
		"batch":     len(batch),
		"published": published,
	}).Debug("Iteration")

	return Snapshot{
		Node:      e.name,
		Iteration: e.iteration,
		RunTime:   e.runTime,
		Published: published,
		BatchSize: len(batch),
		Solution:  append([]float64(nil), solution...),
	}, nil
}

// idle handles a pass without fresh data. The stop policy is still asked, so
// that a deadline fires while neighbours are quiet. When every input is gone
// the resilience policy decides first.
func (e *Engine[P, U, S, R]) idle() (bool, error) {
	e.mu.Lock()
	e.runTime = e.clock.Since(e.start)
	tracked := e.neighbors.Tags()
	e.mu.Unlock()

	if !e.anyAlive(tracked) && e.inputsGone(tracked) {
		return true, nil
	}
	return e.checkStop(), nil
}

func (e *Engine[P, U, S, R]) anyAlive(tags []string) bool {
	for _, tag := range tags {
		if e.substrate.TagHasSubscription(tag) {
			return true
		}
	}
	return false
}

// inputsGone consults the resilience policy about dead inputs and reports
// whether it stopped the engine.
func (e *Engine[P, U, S, R]) inputsGone(tracked []string) bool {
	action := e.resilience.OnNoNeighborData(tracked)

	e.logger.WithFields(logrus.Fields{
		"dead":   tracked,
		"action": action.String(),
	}).Debug("No neighbour left")

	if e.metrics != nil {
		e.metrics.ResilienceAction(action.String())
	}

	switch action {
	case ActionStop:
		e.mu.Lock()
		e.neighbors.Forget(tracked...)
		e.mu.Unlock()
		e.state.setReason(ResilienceStop)
		e.setState(Stopped)
		return true
	case ActionResubscribe:
		if len(tracked) == 0 {
			return false
		}
		_, err := e.substrate.Subscribe(tracked...).WaitClock(e.clock, e.resubscribeTimeout)
		if err != nil {
			e.logger.WithError(err).Debug("Resubscription failed")
		}
	}
	return false
}

// State returns the current state.
func (e *Engine[P, U, S, R]) State() State {
	return e.getState()
}

// StopReason returns why the engine stopped, or NotStopped.
func (e *Engine[P, U, S, R]) StopReason() StopReason {
	return e.state.getReason()
}

// Name returns the name of the node.
func (e *Engine[P, U, S, R]) Name() string {
	return e.name
}

// IterationCount returns the number of completed iterations.
func (e *Engine[P, U, S, R]) IterationCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.iteration
}

// RunTime returns the time spent running, as of the last pass. It is zero
// before the first pass and frozen once stopped.
func (e *Engine[P, U, S, R]) RunTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runTime
}

// Processor gives access to the processor. It must not be used while the
// engine is running.
func (e *Engine[P, U, S, R]) Processor() P {
	return e.processor
}

// CurrentSolution returns a copy of the partition owned by this node.
func (e *Engine[P, U, S, R]) CurrentSolution() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.processor.CurrentSolution()...)
}

// FullState returns a copy of the whole local view.
func (e *Engine[P, U, S, R]) FullState() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.processor.FullState()...)
}

// Neighbors returns a copy of the latest value of each input.
func (e *Engine[P, U, S, R]) Neighbors() map[string]net.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.neighbors.Copy()
}

// LastPublished returns a copy of the last published message.
func (e *Engine[P, U, S, R]) LastPublished() net.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPublished.Clone()
}
