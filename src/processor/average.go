package processor

import (
	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/mosaicnetworks/iterum/src/net"
)

// AverageConfig parameterises Average. Values, when set, holds one starting
// value per node and takes precedence over Value.
type AverageConfig struct {
	Value  float64   `mapstructure:"value"`
	Values []float64 `mapstructure:"values"`
}

// Average keeps the running mean of its own starting value and of every value
// it has received, and publishes that mean at its node index.
type Average struct {
	index int
	sum   float64
	count int
}

// NewAverage ...
func NewAverage(conf AverageConfig, topo engine.Topology) (*Average, error) {
	value := conf.Value
	if len(conf.Values) > 0 {
		if topo.Index < 0 || topo.Index >= len(conf.Values) {
			return nil, errIndex("values", topo.Index, len(conf.Values))
		}
		value = conf.Values[topo.Index]
	}
	return &Average{index: topo.Index, sum: value, count: 1}, nil
}

func (a *Average) mean() float64 {
	return a.sum / float64(a.count)
}

// InitialMessage implements engine.Processor.
func (a *Average) InitialMessage() net.Message {
	return net.Message{float64(a.index), a.mean()}
}

// ApplyUpdates implements engine.Processor.
func (a *Average) ApplyUpdates(batch []engine.Update) error {
	for _, u := range batch {
		for _, iv := range u.Message.Pairs() {
			if iv.Index < 0 {
				continue
			}
			a.sum += iv.Value
			a.count++
		}
	}
	return nil
}

// PrepareOutbound implements engine.Processor.
func (a *Average) PrepareOutbound() net.Message {
	return a.InitialMessage()
}

// CurrentSolution implements engine.Processor.
func (a *Average) CurrentSolution() []float64 {
	return []float64{a.mean()}
}

// FullState implements engine.Processor.
func (a *Average) FullState() []float64 {
	return []float64{a.sum, float64(a.count)}
}
