package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mosaicnetworks/iterum/src/iterum"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/mosaicnetworks/iterum/src/trace"
	"github.com/spf13/cobra"
)

var (
	simNodes int
	simAlpha float64
)

//NewSimulateCmd returns the command that runs a whole network in-process
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run every machine of a network in this process",
		PreRunE: loadConfig,
		RunE:    simulate,
	}
	AddSimulateFlags(cmd)
	return cmd
}

//AddSimulateFlags adds flags to the Simulate command
func AddSimulateFlags(cmd *cobra.Command) {
	AddNodeFlags(cmd)

	cmd.Flags().IntVar(&simNodes, "nodes", 0, "Generate a network of this many machines instead of reading one")
	cmd.Flags().Float64Var(&simAlpha, "alpha", 0.5, "Neighbourhood of generated networks, between 0.1 and 1")
}

func simulate(cmd *cobra.Command, args []string) error {
	var network *peers.Network
	var err error

	if simNodes > 0 {
		network, err = peers.Generate(simNodes, simAlpha, "127.0.0.1", 1000, 100)
	} else {
		network, err = peers.LoadNetwork(_config.NetworkFile)
	}
	if err != nil {
		return err
	}

	var recorder trace.Recorder
	if _config.Trace {
		r, err := trace.NewBadgerRecorder(_config.TraceDir)
		if err != nil {
			return err
		}
		defer r.Close()
		recorder = r
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := iterum.Simulate(ctx, _config, network, recorder)
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("%-12s %8d iterations  %-14s %v\n", r.Name, r.Iterations, r.Reason, r.Solution)
	}
	if _config.Trace {
		fmt.Printf("trace run %s in %s\n", _config.RunID, _config.TraceDir)
	}

	return nil
}
