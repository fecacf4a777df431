package commands

import (
	"fmt"
	"os"

	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/spf13/cobra"
)

var (
	genNodes    int
	genAlpha    float64
	genAddress  string
	genPort     uint16
	genPortStep uint16
	genOutput   string
)

// NewGenConfigCmd produces a command that writes a generated network
func NewGenConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genconfig",
		Short: "Generate a network description",
		Long: `Generate a network of machines on a ring. Machine i publishes tag i and
subscribes to the tags of the machines within int(alpha*nodes) positions of
it. Each machine dials the next one.`,
		RunE: genConfig,
	}

	AddGenConfigFlags(cmd)

	return cmd
}

//AddGenConfigFlags adds flags to the genconfig command
func AddGenConfigFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&genNodes, "nodes", 4, "Number of machines")
	cmd.Flags().Float64Var(&genAlpha, "alpha", 0.5, "Neighbourhood, between 0.1 and 1")
	cmd.Flags().StringVar(&genAddress, "address", "127.0.0.1", "Address of every machine")
	cmd.Flags().Uint16Var(&genPort, "port", 1000, "Port of the first machine")
	cmd.Flags().Uint16Var(&genPortStep, "port-step", 100, "Port increment between machines")
	cmd.Flags().StringVarP(&genOutput, "output", "o", "-", "Output file (.yaml, .json or .cfg), - for YAML on stdout")
}

func genConfig(cmd *cobra.Command, args []string) error {
	network, err := peers.Generate(genNodes, genAlpha, genAddress, genPort, genPortStep)
	if err != nil {
		return err
	}

	if genOutput == "-" {
		return network.WriteYAML(os.Stdout)
	}

	if err := peers.NewNetworkFile(genOutput).Write(network); err != nil {
		return fmt.Errorf("Writing network: %s", err)
	}

	fmt.Printf("Network of %d machines written to: %s\n", network.Len(), genOutput)

	return nil
}
