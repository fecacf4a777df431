package commands

import (
	"github.com/spf13/cobra"
)

//RootCmd is the root command for iterum
var RootCmd = &cobra.Command{
	Use:              "iterum",
	Short:            "asynchronous decentralized iterations",
	TraverseChildren: true,
}
