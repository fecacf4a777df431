package net

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/sirupsen/logrus"
)

// InmemHub connects InmemSubstrates living in the same process. Frames are
// handed over synchronously, so a publish is visible to every reachable
// subscriber by the time Publish returns.
type InmemHub struct {
	sync.RWMutex
	nodes map[string]*InmemSubstrate
	epoch int64
}

// NewInmemHub returns an empty hub.
func NewInmemHub() *InmemHub {
	return &InmemHub{
		nodes: make(map[string]*InmemSubstrate),
	}
}

// Join creates the substrate of node name and registers it with the hub.
func (h *InmemHub) Join(name string, logger *logrus.Entry) (*InmemSubstrate, error) {
	h.Lock()
	defer h.Unlock()

	if prev, ok := h.nodes[name]; ok && !prev.router.isClosed() {
		return nil, errors.New("node " + name + " already joined the hub")
	}

	h.epoch++

	s := &InmemSubstrate{
		hub:       h,
		name:      name,
		localAddr: uuid.New().String(),
		router:    newRouter(name, h.epoch, logger.WithField("substrate", "inmem")),
	}
	h.nodes[name] = s

	return s, nil
}

func (h *InmemHub) lookup(name string) (*InmemSubstrate, bool) {
	h.RLock()
	defer h.RUnlock()

	s, ok := h.nodes[name]
	if !ok || s.router.isClosed() {
		return nil, false
	}
	return s, true
}

// Disconnect cuts the link between two nodes, as if the network between them
// had failed.
func (h *InmemHub) Disconnect(a, b string) {
	h.RLock()
	sa, okA := h.nodes[a]
	sb, okB := h.nodes[b]
	h.RUnlock()

	if !okA || !okB {
		return
	}

	sa.detach(b)
	sb.detach(a)
}

type inmemLink struct {
	local  *InmemSubstrate
	remote *InmemSubstrate
}

func (l *inmemLink) Peer() string {
	return l.remote.name
}

func (l *inmemLink) Send(f *Frame) error {
	if l.remote.router.isClosed() {
		return ErrTransportShutdown
	}
	l.remote.router.receive(l.local.name, f)
	return nil
}

func (l *inmemLink) Close() error {
	return nil
}

// InmemSubstrate implements the Substrate interface, to allow whole networks
// to be run and tested in-memory.
type InmemSubstrate struct {
	hub       *InmemHub
	name      string
	localAddr string
	router    *router

	linkLock sync.Mutex
	links    map[string]*inmemLink
}

func (s *InmemSubstrate) link(remote string) (*inmemLink, bool) {
	s.linkLock.Lock()
	defer s.linkLock.Unlock()
	l, ok := s.links[remote]
	return l, ok
}

func (s *InmemSubstrate) setLink(l *inmemLink) {
	s.linkLock.Lock()
	defer s.linkLock.Unlock()
	if s.links == nil {
		s.links = make(map[string]*inmemLink)
	}
	s.links[l.remote.name] = l
}

func (s *InmemSubstrate) detach(remote string) {
	s.linkLock.Lock()
	l, ok := s.links[remote]
	delete(s.links, remote)
	s.linkLock.Unlock()

	if ok {
		s.router.linkLost(l)
	}
}

// Connect implements the Substrate interface. The attempt fails if the peer
// has not joined the hub yet.
func (s *InmemSubstrate) Connect(peer peers.Peer) *common.Promise[bool] {
	if s.router.isClosed() {
		return common.Rejected[bool](ErrTransportShutdown)
	}

	remote, ok := s.hub.lookup(peer.Name)
	if !ok || remote == s {
		return common.Resolved(false)
	}

	if s.router.hasLink(peer.Name) {
		return common.Resolved(true)
	}

	out := &inmemLink{local: s, remote: remote}
	in := &inmemLink{local: remote, remote: s}

	framesOut, okOut := s.router.attach(out)
	framesIn, okIn := remote.router.attach(in)
	if okOut {
		s.setLink(out)
	}
	if okIn {
		remote.setLink(in)
	}

	s.router.flush(framesOut)
	remote.router.flush(framesIn)

	return common.Resolved(s.router.hasLink(peer.Name) && remote.router.hasLink(s.name))
}

// DeclarePublication implements the Substrate interface.
func (s *InmemSubstrate) DeclarePublication(tags ...string) error {
	return s.router.declare(tags...)
}

// Subscribe implements the Substrate interface.
func (s *InmemSubstrate) Subscribe(tags ...string) *common.Promise[struct{}] {
	return s.router.subscribe(tags...)
}

// HasData implements the Substrate interface.
func (s *InmemSubstrate) HasData(tag string) bool {
	return s.router.inbox.hasData(tag)
}

// Latest implements the Substrate interface.
func (s *InmemSubstrate) Latest(tag string) (Message, error) {
	return s.router.inbox.latest(tag)
}

// Publish implements the Substrate interface.
func (s *InmemSubstrate) Publish(tag string, msg Message) error {
	return s.router.publish(tag, msg)
}

// TagHasSubscription implements the Substrate interface.
func (s *InmemSubstrate) TagHasSubscription(tag string) bool {
	return s.router.inbox.alive(tag)
}

// LocalAddr implements the Substrate interface.
func (s *InmemSubstrate) LocalAddr() string {
	return s.localAddr
}

// Close implements the Substrate interface.
func (s *InmemSubstrate) Close() error {
	s.router.close()

	s.linkLock.Lock()
	links := s.links
	s.links = nil
	s.linkLock.Unlock()

	for name := range links {
		if remote, ok := s.hub.lookup(name); ok {
			remote.detach(s.name)
		}
	}
	return nil
}
