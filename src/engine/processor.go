package engine

import (
	"math/rand"
	"time"

	"github.com/mosaicnetworks/iterum/src/net"
)

// Update is a message received on a subscribed tag.
type Update struct {
	Tag     string
	Message net.Message
}

// Topology tells a Processor where its node sits in the network.
type Topology struct {
	// Node is the name of this node.
	Node string

	// Index is the position of the node in the network.
	Index int

	// Size is the number of nodes in the network.
	Size int

	// Inputs are the tags the node subscribes to.
	Inputs []string

	// Outputs are the tags the node publishes.
	Outputs []string

	// Rand is the random source owned by the processor.
	Rand *rand.Rand
}

// Processor owns the local state of a node.
//
// The engine calls a Processor from a single goroutine, in the order
// ApplyUpdates, PrepareOutbound. A Processor must not fail on malformed
// neighbour input: indices it does not know are ignored. An error from
// ApplyUpdates ends the run.
type Processor interface {
	// InitialMessage is published once, before any neighbour data is seen.
	InitialMessage() net.Message

	// ApplyUpdates folds a batch of neighbour messages into the local state.
	// Within a batch, the last message to touch an index wins.
	ApplyUpdates(batch []Update) error

	// PrepareOutbound encodes the indices owned by this node.
	PrepareOutbound() net.Message

	// CurrentSolution is the partition this node is responsible for.
	CurrentSolution() []float64

	// FullState is the whole local view, values owned by others included.
	FullState() []float64
}

// PublishPolicy decides whether a candidate outbound message is worth
// publishing given the last one that was.
type PublishPolicy interface {
	ShouldPublish(previous, candidate net.Message) bool
}

// StopPolicy decides, once per iteration, whether the node is done. Once it
// returns true it must keep doing so.
type StopPolicy interface {
	ShouldStop(iteration uint64, elapsed time.Duration) bool
}

// ShiftObserver is implemented by stop policies that need to see how much the
// outbound message moved between two iterations.
type ShiftObserver interface {
	ObserveShift(previous, candidate net.Message)
}

// Action is what a ResiliencePolicy wants done when every input is gone.
type Action int

const (
	// ActionStop ends the run.
	ActionStop Action = iota
	// ActionWait keeps polling with the last known values.
	ActionWait
	// ActionResubscribe subscribes to the dead tags again.
	ActionResubscribe
)

func (a Action) String() string {
	switch a {
	case ActionStop:
		return "stop"
	case ActionWait:
		return "wait"
	case ActionResubscribe:
		return "resubscribe"
	default:
		return "unknown"
	}
}

// ResiliencePolicy is consulted when a pass finds no fresh data and every
// subscribed tag has ended.
type ResiliencePolicy interface {
	OnNoNeighborData(dead []string) Action
}
