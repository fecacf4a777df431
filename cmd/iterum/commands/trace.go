package commands

import (
	"fmt"

	"github.com/mosaicnetworks/iterum/src/trace"
	"github.com/spf13/cobra"
)

var (
	traceDir  string
	traceRun  string
	traceNode string
)

// NewTraceCmd produces a command that prints recorded traces
func NewTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print recorded iterations",
		Long: `Without --run, list the recorded runs. With --run, list the nodes of the
run, or print every iteration of --node.`,
		RunE: printTrace,
	}

	cmd.Flags().StringVar(&traceDir, "trace-dir", _config.TraceDir, "Trace database directory")
	cmd.Flags().StringVar(&traceRun, "run", "", "Run identifier")
	cmd.Flags().StringVar(&traceNode, "node", "", "Node name")

	return cmd
}

func printTrace(cmd *cobra.Command, args []string) error {
	r, err := trace.NewBadgerRecorder(traceDir)
	if err != nil {
		return err
	}
	defer r.Close()

	if traceRun == "" {
		runs, err := r.Runs()
		if err != nil {
			return err
		}
		for _, run := range runs {
			fmt.Println(run)
		}
		return nil
	}

	if traceNode == "" {
		nodes, err := r.Nodes(traceRun)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			fmt.Println(n)
		}
		return nil
	}

	records, err := r.Records(traceRun, traceNode)
	if err != nil {
		return err
	}
	for _, rec := range records {
		published := " "
		if rec.Published {
			published = "*"
		}
		fmt.Printf("%8d %14s %s %v\n", rec.Iteration, rec.RunTime, published, rec.Solution)
	}
	return nil
}
