// Package net implements the messaging substrates iterum nodes use to exchange
// partial results.
//
// A Substrate is a topic based publish/subscribe layer. A node connects to some
// peers, declares the tags it will publish, subscribes to the tags of its
// neighbours, and then polls each subscribed tag for fresh data. Only the most
// recent value of a tag is kept: a newer value overwrites an older one that was
// never read, and a value older than the one already seen from the same
// publisher is dropped. Delivery is therefore lossy in staleness but never in
// content.
//
// There are four implementations:
//
// - Inmem: nodes in the same process, wired through an InmemHub. Delivery is
// synchronous, which makes it the substrate of choice for tests and for the
// simulate command.
//
// - TCP: persistent TCP connections between named nodes. Subscriptions are
// flooded through the connection graph and acknowledged along the reverse path,
// so a node can subscribe to a tag produced by a machine it is not directly
// connected to.
//
// - Redis: a shared Redis server acts as broker. Publishers advertise their tags
// with expiring presence keys, and data travels on Redis pub/sub channels.
//
// - Libp2p: gossipsub over libp2p. Node identities are derived from node names
// so that a peer can be dialled knowing only its name and address.
//
// Wire format
//
// Every substrate carries the same Frame, encoded with msgpack. Data frames
// hold a Message: a flat list of (index, value) pairs. The publisher stamps each
// frame with an epoch, chosen when the substrate starts, and a per tag sequence
// number, which receivers use to discard stale frames.
package net
