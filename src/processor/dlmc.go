package processor

import (
	"fmt"
	"math/rand"

	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/mosaicnetworks/iterum/src/net"
)

// Default DLMC parameters.
const (
	DefaultDLMCMu      = 300.0
	DefaultDLMCSigma   = 10.0
	DefaultDLMCEpsilon = 100.0
	DefaultDLMCSamples = 100
)

// DLMCConfig parameterises DLMC. Each node draws Samples observations from a
// normal distribution of mean Mu and deviation Sigma, and the network
// estimates Mu.
type DLMCConfig struct {
	Mu      float64 `mapstructure:"mu"`
	Sigma   float64 `mapstructure:"sigma"`
	Epsilon float64 `mapstructure:"epsilon"`
	Samples int     `mapstructure:"samples"`
}

// DLMC is a distributed Langevin Monte Carlo estimator of the mean of a normal
// distribution. Messages carry the estimate at index 0 and the gradient at
// index 1.
type DLMC struct {
	sigma   float64
	epsilon float64
	data    []float64
	rand    *rand.Rand

	theta float64
	grad  float64
	iter  int

	view map[string][2]float64
}

// DefaultDLMCConfig ...
func DefaultDLMCConfig() DLMCConfig {
	return DLMCConfig{
		Mu:      DefaultDLMCMu,
		Sigma:   DefaultDLMCSigma,
		Epsilon: DefaultDLMCEpsilon,
		Samples: DefaultDLMCSamples,
	}
}

// NewDLMC draws the local observations from topo.Rand.
func NewDLMC(conf DLMCConfig, topo engine.Topology) (*DLMC, error) {
	if conf.Sigma <= 0 {
		return nil, fmt.Errorf("sigma must be positive, got %v", conf.Sigma)
	}
	if conf.Epsilon < 0 {
		return nil, fmt.Errorf("epsilon must not be negative, got %v", conf.Epsilon)
	}
	if conf.Samples <= 0 {
		return nil, fmt.Errorf("samples must be positive, got %d", conf.Samples)
	}

	r := topo.Rand
	if r == nil {
		r = rand.New(rand.NewSource(int64(topo.Index) + 1))
	}

	data := make([]float64, conf.Samples)
	for i := range data {
		data[i] = conf.Mu + conf.Sigma*r.NormFloat64()
	}

	return &DLMC{
		sigma:   conf.Sigma,
		epsilon: conf.Epsilon,
		data:    data,
		rand:    r,
		theta:   0,
		grad:    1,
		iter:    1,
		view:    make(map[string][2]float64),
	}, nil
}

func gradLogLike(x, mu, sigma float64) float64 {
	return (x - mu) / (sigma * sigma)
}

// InitialMessage implements engine.Processor.
func (d *DLMC) InitialMessage() net.Message {
	return d.PrepareOutbound()
}

// ApplyUpdates implements engine.Processor. The latest estimate and gradient of
// every neighbour heard from so far are averaged, and a noisy gradient step is
// taken from that average.
func (d *DLMC) ApplyUpdates(batch []engine.Update) error {
	for _, u := range batch {
		v, ok := d.view[u.Tag]
		if !ok {
			v = [2]float64{0, 1}
		}
		for _, iv := range u.Message.Pairs() {
			if iv.Index == 0 || iv.Index == 1 {
				v[iv.Index] = iv.Value
			}
		}
		d.view[u.Tag] = v
	}

	if len(d.view) == 0 {
		return nil
	}

	var vj, gj float64
	for _, v := range d.view {
		vj += v[0]
		gj += v[1]
	}
	nn := float64(len(d.view))
	vj /= nn
	gj /= nn

	step := d.epsilon / float64(d.iter)
	theta := vj + (step/2)*(gradLogLike(vj, d.theta, d.sigma)+nn*gj) + step*d.rand.NormFloat64()
	grad := gradLogLike(d.data[(d.iter-1)%len(d.data)], theta, d.sigma)

	d.theta, d.grad = theta, grad
	d.iter++
	return nil
}

// PrepareOutbound implements engine.Processor.
func (d *DLMC) PrepareOutbound() net.Message {
	return net.Message{0, d.theta, 1, d.grad}
}

// CurrentSolution implements engine.Processor.
func (d *DLMC) CurrentSolution() []float64 {
	return []float64{d.theta, d.grad}
}

// FullState implements engine.Processor.
func (d *DLMC) FullState() []float64 {
	return d.CurrentSolution()
}

// Data returns the local observations.
func (d *DLMC) Data() []float64 {
	return append([]float64(nil), d.data...)
}
