package net

import (
	"math"
	"sync"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/sirupsen/logrus"
)

// Link is a bidirectional channel to a directly connected neighbour.
type Link interface {
	// Peer is the name of the node at the other end.
	Peer() string

	// Send delivers a frame to the other end.
	Send(f *Frame) error

	// Close tears the link down.
	Close() error
}

type outgoing struct {
	link  Link
	frame *Frame
}

type pendingSub struct {
	remaining map[string]bool
	promise   *common.Promise[struct{}]
}

// router resolves subscriptions and forwards data over a graph of links. It is
// shared by the substrates that do not have a broker to rely on.
//
// A Subscribe for a tag is forwarded to every link at most once. A node that
// knows a route to the tag, because it publishes it or already received an Ack
// for it, answers with an Ack and from then on forwards Data for that tag to
// the subscriber. Unresolved subscriptions stay parked and are offered again to
// new links, and answered as soon as the tag is declared.
//
// Frames are sent only after the router lock is released, so synchronous links
// can call back into the router.
type router struct {
	name   string
	epoch  int64
	inbox  *inbox
	logger *logrus.Entry

	mu        sync.Mutex
	links     map[string]Link
	declared  map[string]bool
	seq       map[string]uint64
	lastData  map[string]*Frame
	interests map[string]map[string]bool
	waiting   map[string]map[string]bool
	forwarded map[string]map[string]bool
	upstream  map[string]string
	wanted    map[string]bool
	pending   []*pendingSub
	closed    bool
}

func newRouter(name string, epoch int64, logger *logrus.Entry) *router {
	return &router{
		name:      name,
		epoch:     epoch,
		inbox:     newInbox(),
		logger:    logger,
		links:     make(map[string]Link),
		declared:  make(map[string]bool),
		seq:       make(map[string]uint64),
		lastData:  make(map[string]*Frame),
		interests: make(map[string]map[string]bool),
		waiting:   make(map[string]map[string]bool),
		forwarded: make(map[string]map[string]bool),
		upstream:  make(map[string]string),
		wanted:    make(map[string]bool),
	}
}

func addToSet(m map[string]map[string]bool, key, member string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]bool)
		m[key] = set
	}
	set[member] = true
}

func (r *router) flush(out []outgoing) {
	for _, o := range out {
		if err := o.link.Send(o.frame); err != nil {
			r.logger.WithFields(logrus.Fields{
				"peer":  o.link.Peer(),
				"kind":  o.frame.Kind.String(),
				"tag":   o.frame.Tag,
				"error": err,
			}).Debug("Failed to send frame")
		}
	}
}

// addLink registers a link. It returns false, and leaves the existing link in
// place, if the peer already has one.
func (r *router) addLink(l Link) bool {
	out, ok := r.attach(l)
	r.flush(out)
	return ok
}

// attach registers a link and returns the frames to send over it without
// sending them, so both ends of a link can be registered before any traffic.
func (r *router) attach(l Link) ([]outgoing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}

	if _, ok := r.links[l.Peer()]; ok {
		return nil, false
	}
	r.links[l.Peer()] = l

	r.logger.WithField("peer", l.Peer()).Debug("Link up")

	// Offer every unresolved subscription to the newcomer.
	out := []outgoing{}
	for tag := range r.unresolvedLocked() {
		out = append(out, r.forwardSubscribeLocked(tag, l.Peer())...)
	}
	return out, true
}

func (r *router) hasLink(peer string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.links[peer]
	return ok
}

// linkLost removes a link. Tags routed through it end.
func (r *router) linkLost(l Link) {
	r.mu.Lock()

	peer := l.Peer()
	if current, ok := r.links[peer]; !ok || current != l {
		r.mu.Unlock()
		return
	}
	delete(r.links, peer)

	for _, set := range r.interests {
		delete(set, peer)
	}
	for _, set := range r.waiting {
		delete(set, peer)
	}
	for _, set := range r.forwarded {
		delete(set, peer)
	}

	out := []outgoing{}
	ended := []string{}
	for tag, up := range r.upstream {
		if up == peer {
			ended = append(ended, tag)
		}
	}
	for _, tag := range ended {
		out = append(out, r.endTagLocked(tag, math.MaxInt64)...)
	}

	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"peer":  peer,
		"ended": ended,
	}).Debug("Link lost")

	r.flush(out)
}

// unresolvedLocked lists tags with a subscriber, local or remote, but no route.
func (r *router) unresolvedLocked() map[string]bool {
	res := make(map[string]bool)
	for tag := range r.wanted {
		if _, ok := r.upstream[tag]; !ok {
			res[tag] = true
		}
	}
	for tag, set := range r.waiting {
		if len(set) > 0 {
			res[tag] = true
		}
	}
	return res
}

// forwardSubscribeLocked sends a Subscribe for tag to every link except the
// excluded ones, skipping links it was already sent to.
func (r *router) forwardSubscribeLocked(tag string, only string, except ...string) []outgoing {
	skip := make(map[string]bool, len(except))
	for _, e := range except {
		skip[e] = true
	}

	out := []outgoing{}
	for name, l := range r.links {
		if only != "" && name != only {
			continue
		}
		if skip[name] || r.forwarded[tag][name] {
			continue
		}
		addToSet(r.forwarded, tag, name)
		out = append(out, outgoing{l, &Frame{Kind: frameSubscribe, From: r.name, Tag: tag}})
	}
	return out
}

// acceptLocked answers a subscriber with an Ack and the last value seen.
func (r *router) acceptLocked(tag string, subscriber string) []outgoing {
	l, ok := r.links[subscriber]
	if !ok {
		return nil
	}
	addToSet(r.interests, tag, subscriber)

	out := []outgoing{{l, &Frame{Kind: frameAck, From: r.name, Tag: tag}}}
	if last, ok := r.lastData[tag]; ok {
		out = append(out, outgoing{l, last})
	}
	return out
}

// resolveLocked is called once a route to tag exists. It answers parked
// subscribers and reports the local batches that became complete.
func (r *router) resolveLocked(tag string) ([]outgoing, []*common.Promise[struct{}]) {
	out := []outgoing{}
	for subscriber := range r.waiting[tag] {
		out = append(out, r.acceptLocked(tag, subscriber)...)
	}
	delete(r.waiting, tag)

	done := []*common.Promise[struct{}]{}
	if r.wanted[tag] {
		r.inbox.revive(tag)
		kept := r.pending[:0]
		for _, p := range r.pending {
			delete(p.remaining, tag)
			if len(p.remaining) == 0 {
				done = append(done, p.promise)
			} else {
				kept = append(kept, p)
			}
		}
		r.pending = kept
	}
	return out, done
}

// endTagLocked marks tag as ended locally and tells downstream subscribers.
func (r *router) endTagLocked(tag string, epoch int64) []outgoing {
	delete(r.upstream, tag)
	delete(r.forwarded, tag)

	if r.wanted[tag] {
		r.inbox.end(tag, epoch)
	}

	out := []outgoing{}
	for subscriber := range r.interests[tag] {
		if l, ok := r.links[subscriber]; ok {
			out = append(out, outgoing{l, &Frame{Kind: frameGone, From: r.name, Tag: tag, Epoch: epoch}})
		}
	}
	delete(r.interests, tag)
	return out
}

func (r *router) declare(tags ...string) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrTransportShutdown
	}

	out := []outgoing{}
	done := []*common.Promise[struct{}]{}
	for _, tag := range tags {
		r.declared[tag] = true
		o, d := r.resolveLocked(tag)
		out = append(out, o...)
		done = append(done, d...)
	}

	r.mu.Unlock()

	r.flush(out)
	for _, p := range done {
		p.Resolve(struct{}{})
	}
	return nil
}

func (r *router) subscribe(tags ...string) *common.Promise[struct{}] {
	promise := common.NewPromise[struct{}]()

	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		promise.Reject(ErrTransportShutdown)
		return promise
	}

	p := &pendingSub{
		remaining: make(map[string]bool),
		promise:   promise,
	}

	out := []outgoing{}
	for _, tag := range tags {
		r.inbox.watch(tag)
		r.wanted[tag] = true
		if _, ok := r.upstream[tag]; ok || r.declared[tag] {
			r.inbox.revive(tag)
			continue
		}
		p.remaining[tag] = true
		out = append(out, r.forwardSubscribeLocked(tag, "")...)
	}

	if len(p.remaining) == 0 {
		r.mu.Unlock()
		promise.Resolve(struct{}{})
		return promise
	}
	r.pending = append(r.pending, p)

	r.mu.Unlock()

	r.flush(out)
	return promise
}

func (r *router) publish(tag string, msg Message) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return ErrTransportShutdown
	}
	if !r.declared[tag] {
		r.mu.Unlock()
		return ErrNotDeclared
	}

	r.seq[tag]++
	f := &Frame{
		Kind:   frameData,
		From:   r.name,
		Tag:    tag,
		Epoch:  r.epoch,
		Seq:    r.seq[tag],
		Values: msg.Clone(),
	}
	r.lastData[tag] = f

	out := []outgoing{}
	for subscriber := range r.interests[tag] {
		if l, ok := r.links[subscriber]; ok {
			out = append(out, outgoing{l, f})
		}
	}

	r.mu.Unlock()

	r.flush(out)
	return nil
}

// receive handles a frame that arrived over the link to from.
func (r *router) receive(from string, f *Frame) {
	r.mu.Lock()

	if _, ok := r.links[from]; r.closed || !ok {
		r.mu.Unlock()
		return
	}

	out := []outgoing{}
	done := []*common.Promise[struct{}]{}

	switch f.Kind {
	case frameSubscribe:
		_, routed := r.upstream[f.Tag]
		if r.declared[f.Tag] || routed {
			out = r.acceptLocked(f.Tag, from)
		} else {
			addToSet(r.waiting, f.Tag, from)
			out = r.forwardSubscribeLocked(f.Tag, "", from)
		}

	case frameAck:
		if _, ok := r.upstream[f.Tag]; !ok {
			r.upstream[f.Tag] = from
		}
		out, done = r.resolveLocked(f.Tag)

	case frameData:
		if last, ok := r.lastData[f.Tag]; ok && !f.newer(last.Epoch, last.Seq) {
			break
		}
		r.lastData[f.Tag] = f
		if r.wanted[f.Tag] {
			r.inbox.deliver(f.Tag, f.Epoch, f.Seq, f.Values)
		}
		for subscriber := range r.interests[f.Tag] {
			if subscriber == from {
				continue
			}
			if l, ok := r.links[subscriber]; ok {
				out = append(out, outgoing{l, f})
			}
		}

	case frameGone:
		if up, ok := r.upstream[f.Tag]; ok && up == from {
			out = r.endTagLocked(f.Tag, f.Epoch)
		}
	}

	r.mu.Unlock()

	r.flush(out)
	for _, p := range done {
		p.Resolve(struct{}{})
	}
}

// close announces the end of every declared tag and drops all links.
func (r *router) close() []Link {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return nil
	}

	out := []outgoing{}
	for tag := range r.declared {
		for subscriber := range r.interests[tag] {
			if l, ok := r.links[subscriber]; ok {
				out = append(out, outgoing{l, &Frame{Kind: frameGone, From: r.name, Tag: tag, Epoch: r.epoch}})
			}
		}
	}

	links := make([]Link, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, l)
	}
	r.links = make(map[string]Link)
	r.closed = true

	pending := r.pending
	r.pending = nil

	r.mu.Unlock()

	r.flush(out)
	for _, p := range pending {
		p.promise.Reject(ErrTransportShutdown)
	}
	return links
}

func (r *router) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *router) linkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}
