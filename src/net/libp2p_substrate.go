package net

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/sirupsen/logrus"
)

// Libp2pOptions configures a Libp2pSubstrate.
type Libp2pOptions struct {
	// ListenAddr is the local host:port to listen on.
	ListenAddr string

	// TopicPrefix namespaces gossipsub topics.
	TopicPrefix string

	// PollInterval is how often pending subscriptions check for peers.
	PollInterval time.Duration
}

// NodeIdentity derives the libp2p key of node name. Every node can compute the
// peer ID of any other from its name alone.
func NodeIdentity(name string) (crypto.PrivKey, peer.ID, error) {
	seed := sha256.Sum256([]byte("iterum/" + name))
	priv, _, err := crypto.GenerateEd25519Key(bytes.NewReader(seed[:]))
	if err != nil {
		return nil, "", err
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, "", err
	}
	return priv, id, nil
}

// PeerMultiaddr builds the dialable multiaddr of a peer.
func PeerMultiaddr(p peers.Peer) (ma.Multiaddr, error) {
	host, port, err := net.SplitHostPort(p.NetAddr)
	if err != nil {
		return nil, err
	}
	_, id, err := NodeIdentity(p.Name)
	if err != nil {
		return nil, err
	}

	proto := "dns4"
	if ip := net.ParseIP(host); ip != nil {
		proto = "ip4"
		if ip.To4() == nil {
			proto = "ip6"
		}
	}

	return ma.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%s/p2p/%s", proto, host, port, id))
}

type libp2pTopic struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	events *pubsub.TopicEventHandler
	last   []byte

	// publisher is the node last heard publishing on the topic, and
	// publisherID its derived peer ID.
	publisher   string
	publisherID peer.ID
}

// Libp2pSubstrate is a Substrate over gossipsub. Each tag is a topic. Neighbours
// are dialled directly and gossip carries publications to the rest of the
// network.
type Libp2pSubstrate struct {
	name   string
	epoch  int64
	opts   Libp2pOptions
	host   host.Host
	ps     *pubsub.PubSub
	inbox  *inbox
	logger *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	topics   map[string]*libp2pTopic
	declared map[string]bool
	seq      map[string]uint64
	closed   bool
}

// NewLibp2pSubstrate starts a libp2p host for node name with its derived
// identity and joins gossipsub.
func NewLibp2pSubstrate(name string, opts Libp2pOptions, logger *logrus.Entry) (*Libp2pSubstrate, error) {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "iterum"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}

	bindHost, bindPort, err := net.SplitHostPort(opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", opts.ListenAddr, err)
	}
	if bindHost == "" {
		bindHost = "0.0.0.0"
	}
	listen, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%s", bindHost, bindPort))
	if err != nil {
		return nil, fmt.Errorf("invalid listen multiaddr: %w", err)
	}

	priv, _, err := NodeIdentity(name)
	if err != nil {
		return nil, fmt.Errorf("derive identity: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrs(listen), libp2p.Identity(priv))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	return &Libp2pSubstrate{
		name:     name,
		epoch:    time.Now().UnixNano(),
		opts:     opts,
		host:     h,
		ps:       ps,
		inbox:    newInbox(),
		logger:   logger.WithField("substrate", "libp2p"),
		ctx:      ctx,
		cancel:   cancel,
		topics:   make(map[string]*libp2pTopic),
		declared: make(map[string]bool),
		seq:      make(map[string]uint64),
	}, nil
}

// joinLocked joins the topic of tag and starts reading it.
func (l *Libp2pSubstrate) joinLocked(tag string) (*libp2pTopic, error) {
	if t, ok := l.topics[tag]; ok {
		return t, nil
	}

	topic, err := l.ps.Join(l.opts.TopicPrefix + "/" + tag)
	if err != nil {
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return nil, err
	}
	events, err := topic.EventHandler()
	if err != nil {
		sub.Cancel()
		topic.Close()
		return nil, err
	}

	t := &libp2pTopic{topic: topic, sub: sub, events: events}
	l.topics[tag] = t

	l.wg.Add(2)
	go l.readTopic(t)
	go l.watchPeers(tag, t)

	return t, nil
}

func (l *Libp2pSubstrate) readTopic(t *libp2pTopic) {
	defer l.wg.Done()

	for {
		msg, err := t.sub.Next(l.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == l.host.ID() {
			continue
		}
		var f Frame
		if err := f.Unmarshal(msg.Data); err != nil {
			l.logger.WithField("error", err).Debug("Dropping undecodable frame")
			continue
		}
		if f.From == l.name {
			continue
		}
		switch f.Kind {
		case frameData:
			if l.inbox.deliver(f.Tag, f.Epoch, f.Seq, f.Values) {
				l.notePublisher(t, f.From)
			}
		case frameGone:
			l.inbox.end(f.Tag, f.Epoch)
		}
	}
}

func (l *Libp2pSubstrate) notePublisher(t *libp2pTopic, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.publisher == name {
		return
	}
	_, id, err := NodeIdentity(name)
	if err != nil {
		return
	}
	t.publisher = name
	t.publisherID = id
}

// watchPeers republishes the last value of a declared tag to peers that join
// its topic late. It ends a subscribed tag when its known publisher leaves the
// topic, or when the topic empties. A publisher that is not a direct topic
// peer and never sends Gone is only noticed through the latter.
func (l *Libp2pSubstrate) watchPeers(tag string, t *libp2pTopic) {
	defer l.wg.Done()

	for {
		ev, err := t.events.NextPeerEvent(l.ctx)
		if err != nil {
			return
		}
		if ev.Type == pubsub.PeerLeave {
			l.mu.Lock()
			publisherLeft := t.publisherID != "" && ev.Peer == t.publisherID
			l.mu.Unlock()

			if publisherLeft || len(t.topic.ListPeers()) == 0 {
				l.logger.WithFields(logrus.Fields{
					"tag":  tag,
					"peer": ev.Peer,
				}).Debug("Publisher left topic")
				l.inbox.end(tag, math.MaxInt64)
			}
			continue
		}

		l.mu.Lock()
		last := t.last
		l.mu.Unlock()

		if last != nil {
			if err := t.topic.Publish(l.ctx, last); err != nil {
				l.logger.WithFields(logrus.Fields{
					"tag":   tag,
					"error": err,
				}).Debug("Failed to republish")
			}
		}
	}
}

// Connect implements the Substrate interface.
func (l *Libp2pSubstrate) Connect(p peers.Peer) *common.Promise[bool] {
	addr, err := PeerMultiaddr(p)
	if err != nil {
		return common.Rejected[bool](err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return common.Rejected[bool](err)
	}

	promise := common.NewPromise[bool]()
	go func() {
		if err := l.host.Connect(l.ctx, *info); err != nil {
			l.logger.WithFields(logrus.Fields{
				"peer":  p.Name,
				"error": err,
			}).Debug("Connect failed")
			promise.Resolve(false)
			return
		}
		promise.Resolve(true)
	}()
	return promise
}

// DeclarePublication implements the Substrate interface. Publishers join their
// own topics so that subscribers see them as topic peers.
func (l *Libp2pSubstrate) DeclarePublication(tags ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrTransportShutdown
	}
	for _, tag := range tags {
		if _, err := l.joinLocked(tag); err != nil {
			return err
		}
		l.declared[tag] = true
	}
	return nil
}

// Subscribe implements the Substrate interface. A tag counts as acknowledged
// once its topic has at least one peer. That peer may be another subscriber
// rather than the publisher, which is only known from its first message.
func (l *Libp2pSubstrate) Subscribe(tags ...string) *common.Promise[struct{}] {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return common.Rejected[struct{}](ErrTransportShutdown)
	}
	joined := make([]*libp2pTopic, 0, len(tags))
	for _, tag := range tags {
		l.inbox.watch(tag)
		t, err := l.joinLocked(tag)
		if err != nil {
			l.mu.Unlock()
			return common.Rejected[struct{}](err)
		}
		joined = append(joined, t)
	}
	l.mu.Unlock()

	promise := common.NewPromise[struct{}]()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(l.opts.PollInterval)
		defer ticker.Stop()

		for i := 0; i < len(joined); {
			if len(joined[i].topic.ListPeers()) > 0 {
				l.inbox.revive(tags[i])
				i++
				continue
			}
			select {
			case <-l.ctx.Done():
				promise.Reject(ErrTransportShutdown)
				return
			case <-ticker.C:
			}
		}
		promise.Resolve(struct{}{})
	}()

	return promise
}

// HasData implements the Substrate interface.
func (l *Libp2pSubstrate) HasData(tag string) bool {
	return l.inbox.hasData(tag)
}

// Latest implements the Substrate interface.
func (l *Libp2pSubstrate) Latest(tag string) (Message, error) {
	return l.inbox.latest(tag)
}

// Publish implements the Substrate interface.
func (l *Libp2pSubstrate) Publish(tag string, msg Message) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrTransportShutdown
	}
	if !l.declared[tag] {
		l.mu.Unlock()
		return ErrNotDeclared
	}
	l.seq[tag]++
	f := &Frame{
		Kind:   frameData,
		From:   l.name,
		Tag:    tag,
		Epoch:  l.epoch,
		Seq:    l.seq[tag],
		Values: msg.Clone(),
	}
	data, err := f.Marshal()
	if err != nil {
		l.mu.Unlock()
		return err
	}
	t := l.topics[tag]
	t.last = data
	l.mu.Unlock()

	return t.topic.Publish(l.ctx, data)
}

// TagHasSubscription implements the Substrate interface.
func (l *Libp2pSubstrate) TagHasSubscription(tag string) bool {
	return l.inbox.alive(tag)
}

// LocalAddr implements the Substrate interface.
func (l *Libp2pSubstrate) LocalAddr() string {
	addrs := l.host.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return fmt.Sprintf("%s/p2p/%s", addrs[0], l.host.ID())
}

// Close implements the Substrate interface.
func (l *Libp2pSubstrate) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	topics := l.topics
	declared := l.declared
	l.mu.Unlock()

	for tag := range declared {
		f := &Frame{Kind: frameGone, From: l.name, Tag: tag, Epoch: l.epoch}
		data, err := f.Marshal()
		if err != nil {
			continue
		}
		if err := topics[tag].topic.Publish(l.ctx, data); err != nil {
			l.logger.WithFields(logrus.Fields{
				"tag":   tag,
				"error": err,
			}).Debug("Failed to announce end of tag")
		}
	}

	l.cancel()
	for _, t := range topics {
		t.events.Cancel()
		t.sub.Cancel()
	}
	l.wg.Wait()
	for _, t := range topics {
		_ = t.topic.Close()
	}
	return l.host.Close()
}
