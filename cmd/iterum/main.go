package main

import (
	"os"

	cmd "github.com/mosaicnetworks/iterum/cmd/iterum/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewRunCmd(),
		cmd.NewSimulateCmd(),
		cmd.NewGenConfigCmd(),
		cmd.NewTraceCmd(),
	)

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
