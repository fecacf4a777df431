package engine

import (
	"fmt"
	"math/rand"
	"reflect"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/metrics"
	"github.com/mosaicnetworks/iterum/src/net"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/sirupsen/logrus"
)

// Default handshake and polling values.
const (
	DefaultConnectBackoff     = 10 * time.Millisecond
	DefaultConnectTimeout     = 10 * time.Second
	DefaultSubscribeTimeout   = 60 * time.Second
	DefaultResubscribeTimeout = 5 * time.Second
	DefaultPollJitterMin      = 1 * time.Millisecond
	DefaultPollJitterMax      = 5 * time.Millisecond
)

// Config holds everything Build needs to produce an Engine.
type Config[P Processor, U PublishPolicy, S StopPolicy, R ResiliencePolicy] struct {
	// Name is the name of this node.
	Name string

	// Index and Size locate the node in the network. They are passed on to
	// the processor factory.
	Index int
	Size  int

	// Substrate carries messages to and from the other nodes.
	Substrate net.Substrate

	// Peers are the nodes to connect to before subscribing.
	Peers []peers.Peer

	// Outputs are the tags this node publishes. Inputs are the tags it
	// subscribes to.
	Outputs []string
	Inputs  []string

	// NewProcessor builds the processor once the handshake has succeeded.
	NewProcessor func(Topology) (P, error)

	Publish    U
	Stop       S
	Resilience R

	// ConnectBackoff is the pause between two connection attempts to the same
	// peer, and ConnectTimeout the time after which the peer is given up on.
	// ConnectAttempts, when positive, also caps the number of attempts.
	ConnectBackoff  time.Duration
	ConnectTimeout  time.Duration
	ConnectAttempts int

	// SubscribeTimeout bounds the wait for subscriptions to be acknowledged.
	SubscribeTimeout time.Duration

	// ResubscribeTimeout bounds the wait when the resilience policy asks for
	// a new subscription.
	ResubscribeTimeout time.Duration

	// The engine pauses for a random duration in [PollJitterMin,
	// PollJitterMax] between two passes of its loop.
	PollJitterMin time.Duration
	PollJitterMax time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// Rand drives the poll jitter. A processor gets its own source derived
	// from it.
	Rand *rand.Rand

	Logger  *logrus.Entry
	Metrics *metrics.Metrics
}

func (c *Config[P, U, S, R]) setDefaults() {
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = DefaultConnectBackoff
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.ResubscribeTimeout <= 0 {
		c.ResubscribeTimeout = DefaultResubscribeTimeout
	}
	if c.PollJitterMin < 0 {
		c.PollJitterMin = 0
	}
	if c.PollJitterMax < c.PollJitterMin {
		c.PollJitterMax = c.PollJitterMin
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Rand == nil {
		c.Rand = common.NewRand(0)
	}
	if c.Logger == nil {
		log := logrus.New()
		log.Level = logrus.InfoLevel
		c.Logger = logrus.NewEntry(log)
	}
}

// Validate checks the configuration before any network activity.
func (c *Config[P, U, S, R]) Validate() error {
	invalid := func(subject string, format string, args ...interface{}) error {
		return common.NewHandshakeErr(c.Name, common.InvalidConfig, subject, fmt.Errorf(format, args...))
	}

	if c.Name == "" {
		return invalid("name", "node name is empty")
	}
	if c.Substrate == nil {
		return invalid("substrate", "no substrate")
	}
	if c.NewProcessor == nil {
		return invalid("processor", "no processor factory")
	}
	if isNil(c.Publish) {
		return invalid("publish", "no publish policy")
	}
	if isNil(c.Stop) {
		return invalid("stop", "no stop policy")
	}
	if isNil(c.Resilience) {
		return invalid("resilience", "no resilience policy")
	}
	if len(c.Outputs) == 0 {
		return invalid("outputs", "node publishes no tag")
	}

	outputs := make(map[string]bool, len(c.Outputs))
	for _, t := range c.Outputs {
		if t == "" {
			return invalid("outputs", "empty tag")
		}
		outputs[t] = true
	}

	inputs := make(map[string]bool, len(c.Inputs))
	for _, t := range c.Inputs {
		if outputs[t] {
			return invalid(t, "node subscribes to its own tag")
		}
		if inputs[t] {
			return invalid(t, "tag subscribed twice")
		}
		inputs[t] = true
	}

	for _, p := range c.Peers {
		if p.Name == c.Name {
			return invalid(p.Name, "node connects to itself")
		}
	}

	if c.Size > 0 && (c.Index < 0 || c.Index >= c.Size) {
		return invalid("index", "index %d outside network of size %d", c.Index, c.Size)
	}

	return nil
}

// isNil also catches typed nil pointers stored in an interface.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
