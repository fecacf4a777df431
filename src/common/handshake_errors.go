package common

import (
	"errors"
	"fmt"
)

// HandshakeErrType identifies why a node could not get ready to iterate.
type HandshakeErrType uint32

const (
	// ConnectionRetryExhausted means a peer could not be reached before the
	// connection time limit.
	ConnectionRetryExhausted HandshakeErrType = iota
	// SubscriptionTimeout means the batched subscription was not acknowledged
	// in time.
	SubscriptionTimeout
	// InvalidConfig means the engine configuration was rejected before any
	// network activity.
	InvalidConfig
	// ProcessorInit means the processor factory failed.
	ProcessorInit
	// InitialPublish means the initial message could not be published.
	InitialPublish
)

// HandshakeTimeout is the name used by the builder for an exhausted
// connection retry loop.
const HandshakeTimeout = ConnectionRetryExhausted

// HandshakeErr is returned by the builder when startup fails. Subject names the
// peer, tag or field involved.
type HandshakeErr struct {
	node    string
	errType HandshakeErrType
	subject string
	cause   error
}

// NewHandshakeErr ...
func NewHandshakeErr(node string, errType HandshakeErrType, subject string, cause error) HandshakeErr {
	return HandshakeErr{
		node:    node,
		errType: errType,
		subject: subject,
		cause:   cause,
	}
}

// Type returns the kind of failure.
func (e HandshakeErr) Type() HandshakeErrType {
	return e.errType
}

// Subject returns the peer, tag or field the failure is about.
func (e HandshakeErr) Subject() string {
	return e.subject
}

// Error ...
func (e HandshakeErr) Error() string {
	m := ""
	switch e.errType {
	case ConnectionRetryExhausted:
		m = "Connection Retry Exhausted"
	case SubscriptionTimeout:
		m = "Subscription Timeout"
	case InvalidConfig:
		m = "Invalid Config"
	case ProcessorInit:
		m = "Processor Init"
	case InitialPublish:
		m = "Initial Publish"
	}

	if e.cause != nil {
		return fmt.Sprintf("%s, %s, %s: %v", e.node, e.subject, m, e.cause)
	}
	return fmt.Sprintf("%s, %s, %s", e.node, e.subject, m)
}

// Unwrap returns the underlying cause, if any.
func (e HandshakeErr) Unwrap() error {
	return e.cause
}

// IsHandshake checks that an error is of type HandshakeErr and that its code
// matches the provided HandshakeErr code.
func IsHandshake(err error, t HandshakeErrType) bool {
	var hsErr HandshakeErr
	return errors.As(err, &hsErr) && hsErr.errType == t
}
