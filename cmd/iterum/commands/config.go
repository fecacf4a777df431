package commands

import (
	"github.com/mitchellh/mapstructure"
	"github.com/mosaicnetworks/iterum/src/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var _config = config.NewDefaultConfig()

// AddNodeFlags adds the flags shared by the commands that run nodes.
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write JSON logs to this file")
	cmd.Flags().StringP("network", "n", _config.NetworkFile, "Network description (.yaml, .json or legacy .cfg)")

	// Handshake
	cmd.Flags().Duration("connect-backoff", _config.ConnectBackoff, "Pause between two connection attempts")
	cmd.Flags().Duration("connect-timeout", _config.ConnectTimeout, "Give up on a peer after this long")
	cmd.Flags().Duration("subscribe-timeout", _config.SubscribeTimeout, "Give up waiting for subscriptions after this long")
	cmd.Flags().Duration("resubscribe-timeout", _config.ResubscribeTimeout, "Wait for a resubscription this long")

	// Loop
	cmd.Flags().Duration("jitter-min", _config.JitterMin, "Minimum pause between two passes")
	cmd.Flags().Duration("jitter-max", _config.JitterMax, "Maximum pause between two passes")
	cmd.Flags().Int64("seed", _config.Seed, "Random seed, 0 for a time based one")

	// Trace
	cmd.Flags().Bool("trace", _config.Trace, "Record every iteration in a badger database")
	cmd.Flags().String("trace-dir", _config.TraceDir, "Trace database directory")
	cmd.Flags().String("run", _config.RunID, "Run identifier used in traces")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --network or --trace-dir,
	// this will move them inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"iterum.DataDir":          _config.DataDir,
		"iterum.LogLevel":         _config.LogLevel,
		"iterum.Name":             _config.Name,
		"iterum.NetworkFile":      _config.NetworkFile,
		"iterum.Substrate":        _config.Substrate,
		"iterum.BindAddr":         _config.BindAddr,
		"iterum.ServiceAddr":      _config.ServiceAddr,
		"iterum.ConnectTimeout":   _config.ConnectTimeout,
		"iterum.SubscribeTimeout": _config.SubscribeTimeout,
		"iterum.Seed":             _config.Seed,
		"iterum.Processor":        _config.Processor.Kind(),
		"iterum.Publish":          _config.Publish.Kind(),
		"iterum.Stop":             _config.Stop.Kind(),
		"iterum.Resilience":       _config.Resilience.Kind(),
	}

	if _config.Substrate == config.SubstrateRedis {
		logFields["iterum.RedisAddr"] = _config.RedisAddr
		logFields["iterum.RedisPrefix"] = _config.RedisPrefix
	}

	if _config.Trace {
		logFields["iterum.TraceDir"] = _config.TraceDir
		logFields["iterum.RunID"] = _config.RunID
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Specs given in a config file replace the defaults instead of merging into
// them.
func zeroFields(dc *mapstructure.DecoderConfig) {
	dc.ZeroFields = true
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config, zeroFields); err != nil {
		return err
	}

	// look for config file in [datadir]/iterum.toml (.json, .yaml also work)
	viper.SetConfigName("iterum")         // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config, zeroFields)
}
