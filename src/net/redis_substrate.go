package net

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOptions tune a RedisSubstrate.
type RedisOptions struct {
	// Prefix namespaces every key and channel.
	Prefix string

	// PresenceTTL is how long node and publication keys live without being
	// refreshed. A publisher whose keys expire is considered gone.
	PresenceTTL time.Duration

	// PollInterval is how often pending subscriptions check for publishers.
	PollInterval time.Duration
}

// DefaultRedisOptions returns the options used when none are given.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:       "iterum",
		PresenceTTL:  3 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

/*
RedisSubstrate is a Substrate brokered by a Redis server.

Every tag maps to a pub/sub channel. Publishers advertise themselves with
expiring presence keys, which is how subscriptions are acknowledged and how
dead publishers are detected. The last value of every tag is kept under its own
key so that late subscribers start from it.
*/
type RedisSubstrate struct {
	name   string
	epoch  int64
	client redis.UniversalClient
	pubsub *redis.PubSub
	opts   RedisOptions
	inbox  *inbox
	logger *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	declared map[string]bool
	seq      map[string]uint64
	closed   bool
}

// NewRedisSubstrate registers node name with the Redis server behind client
// and starts the background receive and keepalive routines.
func NewRedisSubstrate(
	name string,
	client redis.UniversalClient,
	opts RedisOptions,
	logger *logrus.Entry,
) (*RedisSubstrate, error) {

	def := DefaultRedisOptions()
	if opts.Prefix == "" {
		opts.Prefix = def.Prefix
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = def.PresenceTTL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &RedisSubstrate{
		name:     name,
		epoch:    time.Now().UnixNano(),
		client:   client,
		opts:     opts,
		inbox:    newInbox(),
		logger:   logger.WithField("substrate", "redis"),
		ctx:      ctx,
		cancel:   cancel,
		declared: make(map[string]bool),
		seq:      make(map[string]uint64),
	}

	if err := client.Set(ctx, r.nodeKey(name), name, opts.PresenceTTL).Err(); err != nil {
		cancel()
		return nil, err
	}

	r.pubsub = client.Subscribe(ctx)

	r.wg.Add(2)
	go r.receiveLoop()
	go r.keepAlive()

	return r, nil
}

func (r *RedisSubstrate) nodeKey(name string) string {
	return r.opts.Prefix + ":node:" + name
}

func (r *RedisSubstrate) pubKey(tag string) string {
	return r.opts.Prefix + ":pub:" + tag
}

func (r *RedisSubstrate) lastKey(tag string) string {
	return r.opts.Prefix + ":last:" + tag
}

func (r *RedisSubstrate) channel(tag string) string {
	return r.opts.Prefix + ":data:" + tag
}

func (r *RedisSubstrate) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *RedisSubstrate) receiveLoop() {
	defer r.wg.Done()

	ch := r.pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var f Frame
			if err := f.Unmarshal([]byte(msg.Payload)); err != nil {
				r.logger.WithField("error", err).Debug("Dropping undecodable frame")
				continue
			}
			r.handle(&f)
		}
	}
}

func (r *RedisSubstrate) handle(f *Frame) {
	if f.From == r.name {
		return
	}
	switch f.Kind {
	case frameData:
		r.inbox.deliver(f.Tag, f.Epoch, f.Seq, f.Values)
	case frameGone:
		r.inbox.end(f.Tag, f.Epoch)
	}
}

// keepAlive refreshes this node's keys and ends subscribed tags whose
// publisher stopped refreshing its own.
func (r *RedisSubstrate) keepAlive() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.PresenceTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		keys := []string{r.nodeKey(r.name)}
		for tag := range r.declared {
			keys = append(keys, r.pubKey(tag), r.lastKey(tag))
		}
		r.mu.Unlock()

		_, err := r.client.Pipelined(r.ctx, func(pipe redis.Pipeliner) error {
			for _, k := range keys {
				pipe.Expire(r.ctx, k, r.opts.PresenceTTL)
			}
			return nil
		})
		if err != nil && r.ctx.Err() == nil {
			r.logger.WithField("error", err).Warn("Failed to refresh presence")
		}

		r.checkPublishers()
	}
}

func (r *RedisSubstrate) checkPublishers() {
	for _, tag := range r.inbox.tags() {
		if !r.inbox.alive(tag) {
			continue
		}
		n, err := r.client.Exists(r.ctx, r.pubKey(tag)).Result()
		if err != nil {
			return
		}
		if n == 0 {
			r.logger.WithField("tag", tag).Debug("Publisher presence expired")
			r.inbox.end(tag, math.MaxInt64)
		}
	}
}

// Connect implements the Substrate interface. Redis has no point to point
// links, so a connection succeeds once the server is reachable and the peer has
// registered.
func (r *RedisSubstrate) Connect(peer peers.Peer) *common.Promise[bool] {
	if r.isClosed() {
		return common.Rejected[bool](ErrTransportShutdown)
	}

	promise := common.NewPromise[bool]()

	go func() {
		if err := r.client.Ping(r.ctx).Err(); err != nil {
			promise.Resolve(false)
			return
		}
		n, err := r.client.Exists(r.ctx, r.nodeKey(peer.Name)).Result()
		promise.Resolve(err == nil && n == 1)
	}()

	return promise
}

// DeclarePublication implements the Substrate interface.
func (r *RedisSubstrate) DeclarePublication(tags ...string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrTransportShutdown
	}
	for _, tag := range tags {
		r.declared[tag] = true
	}
	r.mu.Unlock()

	_, err := r.client.Pipelined(r.ctx, func(pipe redis.Pipeliner) error {
		for _, tag := range tags {
			// a value left by an earlier publisher of tag is not ours to replay
			pipe.Del(r.ctx, r.lastKey(tag))
			pipe.Set(r.ctx, r.pubKey(tag), r.name, r.opts.PresenceTTL)
		}
		return nil
	})
	return err
}

// Subscribe implements the Substrate interface. The batch is acknowledged once
// every tag has a live publisher.
func (r *RedisSubstrate) Subscribe(tags ...string) *common.Promise[struct{}] {
	if r.isClosed() {
		return common.Rejected[struct{}](ErrTransportShutdown)
	}

	channels := make([]string, 0, len(tags))
	for _, tag := range tags {
		r.inbox.watch(tag)
		channels = append(channels, r.channel(tag))
	}

	if err := r.pubsub.Subscribe(r.ctx, channels...); err != nil {
		return common.Rejected[struct{}](err)
	}

	promise := common.NewPromise[struct{}]()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.awaitPublishers(tags); err != nil {
			promise.Reject(err)
			return
		}
		promise.Resolve(struct{}{})
	}()

	return promise
}

func (r *RedisSubstrate) awaitPublishers(tags []string) error {
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = r.pubKey(tag)
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		n, err := r.client.Exists(r.ctx, keys...).Result()
		if err == nil && int(n) == len(keys) {
			break
		}

		select {
		case <-r.ctx.Done():
			return ErrTransportShutdown
		case <-ticker.C:
		}
	}

	for _, tag := range tags {
		r.inbox.revive(tag)

		data, err := r.client.Get(r.ctx, r.lastKey(tag)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}
		var f Frame
		if err := f.Unmarshal(data); err == nil {
			r.handle(&f)
		}
	}
	return nil
}

// HasData implements the Substrate interface.
func (r *RedisSubstrate) HasData(tag string) bool {
	return r.inbox.hasData(tag)
}

// Latest implements the Substrate interface.
func (r *RedisSubstrate) Latest(tag string) (Message, error) {
	return r.inbox.latest(tag)
}

// Publish implements the Substrate interface.
func (r *RedisSubstrate) Publish(tag string, msg Message) error {
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
	r.mu.Unlock()

	data, err := f.Marshal()
	if err != nil {
		return err
	}

	_, err = r.client.Pipelined(r.ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(r.ctx, r.lastKey(tag), data, r.opts.PresenceTTL)
		pipe.Publish(r.ctx, r.channel(tag), data)
		return nil
	})
	return err
}

// TagHasSubscription implements the Substrate interface.
func (r *RedisSubstrate) TagHasSubscription(tag string) bool {
	return r.inbox.alive(tag)
}

// LocalAddr implements the Substrate interface.
func (r *RedisSubstrate) LocalAddr() string {
	return r.nodeKey(r.name)
}

// Close implements the Substrate interface. The client is left open.
func (r *RedisSubstrate) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	tags := make([]string, 0, len(r.declared))
	for tag := range r.declared {
		tags = append(tags, tag)
	}
	r.mu.Unlock()

	ctx := context.Background()

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tag := range tags {
			f := &Frame{Kind: frameGone, From: r.name, Tag: tag, Epoch: r.epoch}
			data, err := f.Marshal()
			if err != nil {
				return err
			}
			pipe.Del(ctx, r.pubKey(tag), r.lastKey(tag))
			pipe.Publish(ctx, r.channel(tag), data)
		}
		pipe.Del(ctx, r.nodeKey(r.name))
		return nil
	})

	r.cancel()
	r.pubsub.Close()
	r.wg.Wait()

	return err
}
