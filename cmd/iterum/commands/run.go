package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mosaicnetworks/iterum/src/iterum"
	"github.com/spf13/cobra"
)

//NewRunCmd returns the command that starts one node of a network
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run one machine of a network",
		PreRunE: loadConfig,
		RunE:    runIterum,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runIterum(cmd *cobra.Command, args []string) error {
	if _config.Name == "" {
		return fmt.Errorf("--name is required")
	}

	node := iterum.NewIterum(_config)

	if err := node.Init(); err != nil {
		_config.Logger().Error("Cannot initialize node: ", err)
		return err
	}
	defer node.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := node.Run(ctx, nil); err != nil {
		return err
	}

	fmt.Printf("%s: %v\n", _config.Name, node.Engine.CurrentSolution())

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	AddNodeFlags(cmd)

	cmd.Flags().String("name", _config.Name, "Name of the machine to run")

	// Substrate
	cmd.Flags().String("substrate", _config.Substrate, "tcp, redis or libp2p")
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port, defaults to the machine address")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP write timeout")
	cmd.Flags().String("redis-addr", _config.RedisAddr, "Redis server of the redis substrate")
	cmd.Flags().String("redis-prefix", _config.RedisPrefix, "Namespace of redis keys and channels")
	cmd.Flags().Duration("redis-ttl", _config.RedisTTL, "Publisher presence TTL")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
}
