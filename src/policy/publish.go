package policy

import (
	"github.com/mosaicnetworks/iterum/src/net"
)

// AlwaysPublish publishes every candidate.
type AlwaysPublish struct{}

// ShouldPublish implements engine.PublishPolicy.
func (AlwaysPublish) ShouldPublish(previous, candidate net.Message) bool {
	return true
}

// PublishOnLinfShift publishes a candidate only when it moved by more than
// Threshold in some component since the last published message. A
// non-positive threshold publishes everything.
type PublishOnLinfShift struct {
	Threshold float64 `mapstructure:"threshold"`
}

// ShouldPublish implements engine.PublishPolicy.
func (p *PublishOnLinfShift) ShouldPublish(previous, candidate net.Message) bool {
	if p.Threshold <= 0 {
		return true
	}
	return net.LinfShift(previous, candidate) > p.Threshold
}
