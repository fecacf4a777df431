package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/mosaicnetworks/iterum/src/net"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/mosaicnetworks/iterum/src/policy"
	"github.com/mosaicnetworks/iterum/src/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type averageConfig = engine.Config[
	*processor.Average,
	policy.AlwaysPublish,
	*policy.StopAfterIterations,
	policy.TrivialResilience,
]

// Two nodes average each other on the synchronous in-memory hub. Steps
// alternate a, b so the outcome is exact.
func TestTwoNodeAverage(t *testing.T) {
	hub := net.NewInmemHub()
	values := processor.AverageConfig{Values: []float64{1, 3}}

	newConfig := func(name string, index int, other string) averageConfig {
		logger := common.NewTestEntry(t, name)
		sub, err := hub.Join(name, logger)
		require.NoError(t, err)
		return averageConfig{
			Name:      name,
			Index:     index,
			Size:      2,
			Substrate: sub,
			Peers:     []peers.Peer{peers.NewPeer(other, "")},
			Outputs:   []string{"tag" + name},
			Inputs:    []string{"tag" + other},
			NewProcessor: func(topo engine.Topology) (*processor.Average, error) {
				return processor.NewAverage(values, topo)
			},
			Publish:    policy.AlwaysPublish{},
			Stop:       &policy.StopAfterIterations{N: 5},
			Resilience: policy.TrivialResilience{},
			Rand:       common.NewRand(int64(index + 1)),
			Logger:     logger,
		}
	}

	// each build waits for the other node to declare its tag
	pa := engine.Build(context.Background(), newConfig("a", 0, "b"))
	pb := engine.Build(context.Background(), newConfig("b", 1, "a"))

	a, err := pa.WaitTimeout(5 * time.Second)
	require.NoError(t, err)
	b, err := pb.WaitTimeout(5 * time.Second)
	require.NoError(t, err)

	for round := 1; round <= 5; round++ {
		stopped, err := a.Step(nil)
		require.NoError(t, err)
		assert.Equal(t, round == 5, stopped)

		stopped, err = b.Step(nil)
		require.NoError(t, err)
		assert.Equal(t, round == 5, stopped)
	}

	assert.Equal(t, engine.StopPolicyFired, a.StopReason())
	assert.Equal(t, uint64(5), a.IterationCount())
	assert.Equal(t, uint64(5), b.IterationCount())
	assert.InDelta(t, 4069.0/1800.0, a.CurrentSolution()[0], 1e-12)
	assert.InDelta(t, 4169.0/1800.0, b.CurrentSolution()[0], 1e-12)
	assert.Equal(t, 6.0, a.FullState()[1])
}
