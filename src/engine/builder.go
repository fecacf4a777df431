package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/sirupsen/logrus"
)

// Build runs the handshake of cfg in the background and resolves to a Ready
// engine. Failures are common.HandshakeErr values, or ctx.Err() when ctx ends
// first.
//
// The steps are, in order: connect to every peer, declare the output tags,
// subscribe to the input tags in one batch, build the processor, and publish
// its initial message. Publishing only after the subscriptions are
// acknowledged keeps the first message from being lost on a slow peer.
func Build[P Processor, U PublishPolicy, S StopPolicy, R ResiliencePolicy](
	ctx context.Context,
	cfg Config[P, U, S, R],
) *common.Promise[*Engine[P, U, S, R]] {

	promise := common.NewPromise[*Engine[P, U, S, R]]()

	if err := cfg.Validate(); err != nil {
		promise.Reject(err)
		return promise
	}
	cfg.setDefaults()

	go func() {
		e, err := handshake(ctx, cfg)
		if err != nil {
			promise.Reject(err)
			return
		}
		promise.Resolve(e)
	}()

	return promise
}

func handshake[P Processor, U PublishPolicy, S StopPolicy, R ResiliencePolicy](
	ctx context.Context,
	cfg Config[P, U, S, R],
) (*Engine[P, U, S, R], error) {

	logger := cfg.Logger.WithField("node", cfg.Name)

	e := newEngine(cfg, logger)

	for _, p := range cfg.Peers {
		if err := connect(ctx, cfg, p, logger); err != nil {
			return nil, err
		}
	}
	logger.WithField("peers", len(cfg.Peers)).Debug("Connected")

	if err := cfg.Substrate.DeclarePublication(cfg.Outputs...); err != nil {
		return nil, common.NewHandshakeErr(cfg.Name, common.InitialPublish, fmt.Sprint(cfg.Outputs), err)
	}

	if len(cfg.Inputs) > 0 {
		if err := subscribe(ctx, cfg); err != nil {
			return nil, err
		}
	}
	logger.WithField("inputs", cfg.Inputs).Debug("Subscriptions acknowledged")

	processor, err := cfg.NewProcessor(Topology{
		Node:    cfg.Name,
		Index:   cfg.Index,
		Size:    cfg.Size,
		Inputs:  append([]string(nil), cfg.Inputs...),
		Outputs: append([]string(nil), cfg.Outputs...),
		Rand:    common.NewRand(cfg.Rand.Int63() + 1),
	})
	if err != nil {
		return nil, common.NewHandshakeErr(cfg.Name, common.ProcessorInit, "processor", err)
	}
	e.processor = processor

	initial := processor.InitialMessage()
	for _, tag := range cfg.Outputs {
		if err := cfg.Substrate.Publish(tag, initial); err != nil {
			return nil, common.NewHandshakeErr(cfg.Name, common.InitialPublish, tag, err)
		}
	}
	e.lastPublished = initial.Clone()
	e.lastCandidate = initial.Clone()
	if cfg.Metrics != nil {
		cfg.Metrics.Published(true)
	}

	e.setState(Ready)
	logger.Debug("Ready")

	return e, nil
}

// connect retries until the peer accepts, the retry schedule runs out or ctx
// ends.
func connect[P Processor, U PublishPolicy, S StopPolicy, R ResiliencePolicy](
	ctx context.Context,
	cfg Config[P, U, S, R],
	p peers.Peer,
	logger *logrus.Entry,
) error {

	retrier := NewRetrier(cfg.ConnectBackoff, cfg.ConnectTimeout, cfg.ConnectAttempts)
	retrier.Start(cfg.Clock.Now())

	for {
		ok, err := attempt(ctx, cfg.Clock, cfg.Substrate.Connect(p), retrier)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil && ok {
			return nil
		}

		wait, more := retrier.Next(cfg.Clock.Now())

		logger.WithFields(logrus.Fields{
			"peer":    p.Name,
			"attempt": retrier.Attempts(),
			"error":   err,
		}).Debug("Connection attempt failed")

		if !more {
			if err == nil {
				err = fmt.Errorf("%d attempts failed", retrier.Attempts())
			}
			return common.NewHandshakeErr(cfg.Name, common.ConnectionRetryExhausted, p.Name, err)
		}

		if err := sleep(ctx, cfg.Clock, wait); err != nil {
			return err
		}
	}
}

// attempt waits for one connection attempt, no longer than what is left of
// the retry deadline.
func attempt(
	ctx context.Context,
	c clock.Clock,
	promise *common.Promise[bool],
	retrier *Retrier,
) (bool, error) {

	left, bounded := retrier.Remaining(c.Now())
	if !bounded {
		return promise.Wait(ctx)
	}
	if promise.Ready() {
		return promise.Get()
	}
	if left <= 0 {
		return false, common.ErrPromiseTimeout
	}

	timer := c.Timer(left)
	defer timer.Stop()

	select {
	case <-promise.Done():
		return promise.Get()
	case <-timer.C:
		return false, common.ErrPromiseTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func subscribe[P Processor, U PublishPolicy, S StopPolicy, R ResiliencePolicy](
	ctx context.Context,
	cfg Config[P, U, S, R],
) error {

	timer := cfg.Clock.Timer(cfg.SubscribeTimeout)
	defer timer.Stop()

	promise := cfg.Substrate.Subscribe(cfg.Inputs...)

	select {
	case <-promise.Done():
		_, err := promise.Get()
		if err != nil {
			return common.NewHandshakeErr(cfg.Name, common.SubscriptionTimeout, fmt.Sprint(cfg.Inputs), err)
		}
		return nil
	case <-timer.C:
		return common.NewHandshakeErr(cfg.Name, common.SubscriptionTimeout, fmt.Sprint(cfg.Inputs), common.ErrPromiseTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleep pauses for d on c, or until ctx ends.
func sleep(ctx context.Context, c clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := c.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
