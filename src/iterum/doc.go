// Package iterum assembles a node from a config.Config: it loads the network
// description, opens the substrate named by the configuration, builds the
// processor and policies from their kinds, and runs the handshake and the
// iteration engine.
//
//	conf := config.NewDefaultConfig()
//	conf.Name = "machine1"
//	node := iterum.NewIterum(conf)
//	if err := node.Init(); err != nil {
//		return err
//	}
//	defer node.Close()
//	return node.Run(ctx, nil)
package iterum
