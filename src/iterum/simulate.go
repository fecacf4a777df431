package iterum

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/iterum/src/config"
	"github.com/mosaicnetworks/iterum/src/net"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/mosaicnetworks/iterum/src/trace"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one node of a simulation.
type Result struct {
	Name       string
	Iterations uint64
	Reason     string
	Solution   []float64
	FullState  []float64
}

// Simulate runs every machine of network in this process, over an in-memory
// hub, with the settings of base. recorder may be nil. Each node closes its
// substrate as soon as it stops, so that its subscribers observe the end of
// its tags. Results are in network order.
func Simulate(
	ctx context.Context,
	base *config.Config,
	network *peers.Network,
	recorder trace.Recorder,
) ([]Result, error) {

	if err := network.Validate(); err != nil {
		return nil, err
	}

	if base.RunID == "" {
		base.RunID = uuid.NewString()
	}

	hub := net.NewInmemHub()
	nodes := make([]*Iterum, 0, network.Len())

	closeAll := func() {
		for _, n := range nodes {
			n.Close()
		}
	}

	for _, m := range network.Machines {
		conf := *base
		conf.Name = m.Name
		conf.Substrate = config.SubstrateInmem
		conf.NoService = true

		n := NewIterum(&conf)
		n.Network = network
		n.Hub = hub
		n.Recorder = recorder

		if err := n.Init(); err != nil {
			closeAll()
			return nil, err
		}
		nodes = append(nodes, n)
	}

	results := make([]Result, len(nodes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for idx, n := range nodes {
		idx, n := idx, n
		g.Go(func() error {
			defer n.Close()

			if err := n.Run(gctx, nil); err != nil {
				return err
			}

			mu.Lock()
			results[idx] = Result{
				Name:       n.Config.Name,
				Iterations: n.Engine.IterationCount(),
				Reason:     n.Engine.StopReason().String(),
				Solution:   n.Engine.CurrentSolution(),
				FullState:  n.Engine.FullState(),
			}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	closeAll()
	if err != nil {
		return nil, err
	}
	return results, nil
}
