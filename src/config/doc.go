// Package config defines the configuration of an iterum node.
//
// Regardless of how a node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package. On top of these options a node relies on a data directory,
// defined by Config.DataDir, where it looks for:
//
//	iterum.yaml   // (optional) the configuration file read by the CLI
//	network.yaml  // the description of the network (.json and .cfg also work)
//	trace/        // the badger database of iteration traces, when enabled
package config
