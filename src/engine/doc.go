// Package engine implements the asynchronous iteration engine and the handshake
// that builds it.
//
// An engine drives one node. It polls the tags it subscribes to, folds whatever
// arrived into a Processor, asks a PublishPolicy whether the new local state is
// worth sending, and asks a StopPolicy whether to carry on. When every
// publisher it listens to is gone for good, a ResiliencePolicy decides what
// happens next. Nodes never wait for each other once running: each one makes
// progress with whatever data it has.
//
// Engines are obtained from Build, which connects to peers, declares the
// node's output tags, subscribes to its inputs and publishes the processor's
// initial message before handing over a Ready engine:
//
//	promise := engine.Build(ctx, cfg)
//	e, err := promise.Get()
//	if err != nil {
//		// common.HandshakeErr
//	}
//	err = e.Run(nil)
package engine
