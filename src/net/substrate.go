package net

import (
	"errors"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/peers"
)

var (
	// ErrNoData is returned by Latest when the tag has no fresh value. Callers
	// must check HasData first.
	ErrNoData = errors.New("no fresh data for tag")

	// ErrNotDeclared is returned when publishing on a tag without declaring the
	// intent to publish it first.
	ErrNotDeclared = errors.New("publication intent not declared for tag")

	// ErrNotSubscribed is returned when reading a tag that was never
	// subscribed to.
	ErrNotSubscribed = errors.New("tag not subscribed")

	// ErrTransportShutdown is returned when operations on a substrate are
	// invoked after it's been closed.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// Substrate is the publish/subscribe layer consumed by the iteration engine.
//
// Network I/O may run on background goroutines, but HasData, Latest and
// TagHasSubscription only read state that those goroutines have already
// settled, so the engine can poll them from its single loop.
type Substrate interface {
	// Connect establishes a connection to a peer. The promise resolves to false
	// when the attempt failed and may be retried.
	Connect(peer peers.Peer) *common.Promise[bool]

	// DeclarePublication announces the tags this node will publish.
	DeclarePublication(tags ...string) error

	// Subscribe subscribes to tags in one batch. The promise resolves once
	// every tag has been acknowledged by a route to its publisher.
	Subscribe(tags ...string) *common.Promise[struct{}]

	// HasData reports whether tag has a value that Latest has not returned yet.
	HasData(tag string) bool

	// Latest returns the most recent value of tag and marks it as read.
	Latest(tag string) (Message, error)

	// Publish sends msg on tag.
	Publish(tag string, msg Message) error

	// TagHasSubscription is false once the publisher of tag is gone for good.
	TagHasSubscription(tag string) bool

	// LocalAddr is the address other nodes can reach this one at.
	LocalAddr() string

	// Close permanently closes the substrate. Subscribers of the tags this node
	// published observe them as ended.
	Close() error
}
