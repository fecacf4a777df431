package net

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	bufSize = 4096
)

/*
NetworkSubstrate is a Substrate over persistent stream connections, one per
neighbour, provided by a StreamLayer.

Each connection starts with both ends sending a Hello frame carrying their node
name. From then on either end writes msgpack encoded frames, which are handed to
the routing core. Publications reach non-adjacent nodes by being forwarded
along the chain of acknowledged subscriptions.
*/
type NetworkSubstrate struct {
	name    string
	logger  *logrus.Entry
	stream  StreamLayer
	timeout time.Duration
	router  *router

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	connLock sync.Mutex
	conns    map[net.Conn]struct{}
}

// NewNetworkSubstrate creates a substrate for node name. The timeout bounds
// dials, handshakes and writes.
func NewNetworkSubstrate(
	name string,
	stream StreamLayer,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkSubstrate {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	logger = logger.WithField("substrate", "tcp")

	return &NetworkSubstrate{
		name:       name,
		logger:     logger,
		stream:     stream,
		timeout:    timeout,
		router:     newRouter(name, time.Now().UnixNano(), logger),
		shutdownCh: make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}
}

type netLink struct {
	peer    string
	conn    net.Conn
	timeout time.Duration

	writeLock sync.Mutex
	w         *bufio.Writer
	enc       *codec.Encoder
}

func newNetLink(peer string, conn net.Conn, timeout time.Duration) *netLink {
	w := bufio.NewWriterSize(conn, bufSize)
	return &netLink{
		peer:    peer,
		conn:    conn,
		timeout: timeout,
		w:       w,
		enc:     newFrameEncoder(w),
	}
}

func (l *netLink) Peer() string {
	return l.peer
}

func (l *netLink) Send(f *Frame) error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()

	if l.timeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(l.timeout))
	}

	if err := l.enc.Encode(f); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *netLink) Close() error {
	return l.conn.Close()
}

// IsShutdown is used to check if the substrate is shutdown.
func (n *NetworkSubstrate) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

func (n *NetworkSubstrate) track(conn net.Conn) bool {
	n.connLock.Lock()
	defer n.connLock.Unlock()
	if n.IsShutdown() {
		return false
	}
	n.conns[conn] = struct{}{}
	return true
}

func (n *NetworkSubstrate) untrack(conn net.Conn) {
	n.connLock.Lock()
	defer n.connLock.Unlock()
	delete(n.conns, conn)
}

// Listen accepts incoming connections until the substrate is closed.
func (n *NetworkSubstrate) Listen() {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		go n.handleConn(conn)
	}
}

// readHello waits for the Hello frame of the remote node and returns its name.
func (n *NetworkSubstrate) readHello(conn net.Conn, dec *codec.Decoder) (string, error) {
	if n.timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(n.timeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	var remote Frame
	if err := dec.Decode(&remote); err != nil {
		return "", err
	}
	if remote.Kind != frameHello || remote.From == "" {
		return "", fmt.Errorf("expected hello, got %s", remote.Kind)
	}
	return remote.From, nil
}

func (n *NetworkSubstrate) hello() *Frame {
	return &Frame{Kind: frameHello, From: n.name}
}

// handleConn serves an inbound connection. The link is registered before the
// Hello reply goes out, so the dialer never talks to an unregistered link.
func (n *NetworkSubstrate) handleConn(conn net.Conn) {
	if !n.track(conn) {
		conn.Close()
		return
	}
	defer n.untrack(conn)

	dec := newFrameDecoder(bufio.NewReaderSize(conn, bufSize))

	peer, err := n.readHello(conn, dec)
	if err != nil {
		n.logger.WithField("error", err).Debug("Failed handshake")
		conn.Close()
		return
	}

	link := newNetLink(peer, conn, n.timeout)
	out, _ := n.router.attach(link)

	if err := link.Send(n.hello()); err != nil {
		conn.Close()
		n.router.linkLost(link)
		return
	}
	n.router.flush(out)

	n.readLoop(link, dec)
}

// readLoop feeds frames to the router until the connection breaks.
func (n *NetworkSubstrate) readLoop(link *netLink, dec *codec.Decoder) {
	defer func() {
		link.Close()
		n.router.linkLost(link)
	}()

	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if err != io.EOF && !n.IsShutdown() {
				n.logger.WithFields(logrus.Fields{
					"peer":  link.peer,
					"error": err,
				}).Debug("Connection lost")
			}
			return
		}
		if f.Kind == frameHello {
			continue
		}
		n.router.receive(link.peer, &f)
	}
}

// Connect implements the Substrate interface. A connection that already exists
// counts as success.
func (n *NetworkSubstrate) Connect(peer peers.Peer) *common.Promise[bool] {
	if n.IsShutdown() {
		return common.Rejected[bool](ErrTransportShutdown)
	}

	if n.router.hasLink(peer.Name) {
		return common.Resolved(true)
	}

	promise := common.NewPromise[bool]()

	go func() {
		conn, err := n.stream.Dial(peer.NetAddr, n.timeout)
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"peer":  peer.Name,
				"error": err,
			}).Debug("Dial failed")
			promise.Resolve(false)
			return
		}

		if !n.track(conn) {
			conn.Close()
			promise.Reject(ErrTransportShutdown)
			return
		}

		dec := newFrameDecoder(bufio.NewReaderSize(conn, bufSize))
		link := newNetLink(peer.Name, conn, n.timeout)

		var remote string
		err = link.Send(n.hello())
		if err == nil {
			remote, err = n.readHello(conn, dec)
		}
		if err != nil || remote != peer.Name {
			n.logger.WithFields(logrus.Fields{
				"peer":   peer.Name,
				"remote": remote,
				"error":  err,
			}).Debug("Handshake failed")
			conn.Close()
			n.untrack(conn)
			promise.Resolve(false)
			return
		}

		// A connection accepted from the same peer may have won the race. This
		// one is still read from, but the router sends over the first.
		n.router.addLink(link)
		promise.Resolve(true)

		n.readLoop(link, dec)
		n.untrack(conn)
	}()

	return promise
}

// DeclarePublication implements the Substrate interface.
func (n *NetworkSubstrate) DeclarePublication(tags ...string) error {
	return n.router.declare(tags...)
}

// Subscribe implements the Substrate interface.
func (n *NetworkSubstrate) Subscribe(tags ...string) *common.Promise[struct{}] {
	return n.router.subscribe(tags...)
}

// HasData implements the Substrate interface.
func (n *NetworkSubstrate) HasData(tag string) bool {
	return n.router.inbox.hasData(tag)
}

// Latest implements the Substrate interface.
func (n *NetworkSubstrate) Latest(tag string) (Message, error) {
	return n.router.inbox.latest(tag)
}

// Publish implements the Substrate interface.
func (n *NetworkSubstrate) Publish(tag string, msg Message) error {
	return n.router.publish(tag, msg)
}

// TagHasSubscription implements the Substrate interface.
func (n *NetworkSubstrate) TagHasSubscription(tag string) bool {
	return n.router.inbox.alive(tag)
}

// LocalAddr implements the Substrate interface.
func (n *NetworkSubstrate) LocalAddr() string {
	return n.stream.AdvertiseAddr()
}

// Close implements the Substrate interface.
func (n *NetworkSubstrate) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.shutdown {
		return nil
	}
	n.shutdown = true

	// Gone frames go out before the links are torn down.
	n.router.close()

	n.connLock.Lock()
	close(n.shutdownCh)
	conns := n.conns
	n.conns = make(map[net.Conn]struct{})
	n.connLock.Unlock()

	for conn := range conns {
		conn.Close()
	}

	return n.stream.Close()
}
