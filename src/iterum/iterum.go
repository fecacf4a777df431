package iterum

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/config"
	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/mosaicnetworks/iterum/src/metrics"
	"github.com/mosaicnetworks/iterum/src/net"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/mosaicnetworks/iterum/src/policy"
	"github.com/mosaicnetworks/iterum/src/processor"
	"github.com/mosaicnetworks/iterum/src/service"
	"github.com/mosaicnetworks/iterum/src/trace"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Engine is the engine type assembled from configuration, where the processor
// and the policies are only known at runtime.
type Engine = engine.Engine[
	engine.Processor,
	engine.PublishPolicy,
	engine.StopPolicy,
	engine.ResiliencePolicy,
]

// Iterum assembles one node: its place in the network, its substrate, the
// processor and policies named in its configuration, and the optional metrics,
// trace and HTTP service.
type Iterum struct {
	Config    *config.Config
	Network   *peers.Network
	Machine   *peers.Machine
	Index     int
	Hub       *net.InmemHub
	Substrate net.Substrate
	Metrics   *metrics.Metrics
	Recorder  trace.Recorder
	Service   *service.Service
	Engine    *Engine
	Clock     clock.Clock

	ownRecorder bool
	redis       redis.UniversalClient
	logger      *logrus.Entry
}

// NewIterum ...
func NewIterum(conf *config.Config) *Iterum {
	return &Iterum{
		Config: conf,
	}
}

func (i *Iterum) initNetwork() error {
	if i.Network == nil {
		network, err := peers.LoadNetwork(i.Config.NetworkFile)
		if err != nil {
			return err
		}
		i.Network = network
	} else if err := i.Network.Validate(); err != nil {
		return err
	}

	m, ok := i.Network.ByName(i.Config.Name)
	if !ok {
		return fmt.Errorf("cannot find machine %q in network", i.Config.Name)
	}
	i.Machine = m
	i.Index = i.Network.IndexOf(m.Name)

	i.logger.WithFields(logrus.Fields{
		"index":      i.Index,
		"size":       i.Network.Len(),
		"produces":   m.Produces,
		"subscribes": m.Subscribes,
		"connect":    m.Connect,
	}).Debug("MACHINE")

	return nil
}

func (i *Iterum) bindAddr() string {
	if i.Config.BindAddr != "" {
		return i.Config.BindAddr
	}
	return i.Machine.Peer().NetAddr
}

func (i *Iterum) initSubstrate() error {
	name := i.Config.Name

	switch i.Config.Substrate {
	case config.SubstrateInmem:
		if i.Hub == nil {
			return fmt.Errorf("inmem substrate needs a hub")
		}
		s, err := i.Hub.Join(name, i.logger)
		if err != nil {
			return err
		}
		i.Substrate = s
	case config.SubstrateTCP, "":
		s, err := net.NewTCPSubstrate(
			name,
			i.bindAddr(),
			i.Config.AdvertiseAddr,
			i.Config.TCPTimeout,
			i.logger,
		)
		if err != nil {
			return err
		}
		go s.Listen()
		i.Substrate = s
	case config.SubstrateRedis:
		i.redis = redis.NewClient(&redis.Options{Addr: i.Config.RedisAddr})
		s, err := net.NewRedisSubstrate(
			name,
			i.redis,
			net.RedisOptions{
				Prefix:      i.Config.RedisPrefix,
				PresenceTTL: i.Config.RedisTTL,
			},
			i.logger,
		)
		if err != nil {
			i.redis.Close()
			return err
		}
		i.Substrate = s
	case config.SubstrateLibp2p:
		s, err := net.NewLibp2pSubstrate(
			name,
			net.Libp2pOptions{ListenAddr: i.bindAddr()},
			i.logger,
		)
		if err != nil {
			return err
		}
		i.Substrate = s
	default:
		return fmt.Errorf("unknown substrate %q", i.Config.Substrate)
	}

	i.logger.WithFields(logrus.Fields{
		"substrate":  i.Config.Substrate,
		"local_addr": i.Substrate.LocalAddr(),
	}).Debug("SUBSTRATE")

	return nil
}

func (i *Iterum) initTrace() error {
	if i.Config.RunID == "" {
		i.Config.RunID = uuid.NewString()
	}
	if i.Recorder != nil || !i.Config.Trace {
		return nil
	}

	i.logger.WithField("path", i.Config.TraceDir).Debug("Opening trace database")

	r, err := trace.NewBadgerRecorder(i.Config.TraceDir)
	if err != nil {
		return err
	}
	i.Recorder = r
	i.ownRecorder = true
	return nil
}

func (i *Iterum) initService() {
	if i.Config.NoService {
		return
	}
	i.Service = service.NewService(i.Config.ServiceAddr, i.Config.Name, i.Metrics, i.logger)
	go i.Service.Serve()
}

// Init loads the network and opens the substrate. Nothing is sent before
// Build.
func (i *Iterum) Init() error {
	i.logger = i.Config.Logger().WithField("node", i.Config.Name)

	if i.Clock == nil {
		i.Clock = clock.New()
	}

	if err := i.initNetwork(); err != nil {
		return err
	}

	if err := i.initTrace(); err != nil {
		return err
	}

	if err := i.initSubstrate(); err != nil {
		return err
	}

	i.Metrics = metrics.NewMetrics(i.Config.Name)

	i.initService()

	return nil
}

func (i *Iterum) engineConfig() (engine.Config[
	engine.Processor,
	engine.PublishPolicy,
	engine.StopPolicy,
	engine.ResiliencePolicy,
], error) {

	var cfg engine.Config[engine.Processor, engine.PublishPolicy, engine.StopPolicy, engine.ResiliencePolicy]

	publish, err := policy.NewPublishPolicy(i.Config.Publish)
	if err != nil {
		return cfg, err
	}
	stop, err := policy.NewStopPolicy(i.Config.Stop)
	if err != nil {
		return cfg, err
	}
	resilience, err := policy.NewResiliencePolicy(i.Config.Resilience, i.Clock)
	if err != nil {
		return cfg, err
	}

	connect, err := i.Network.ConnectPeers(i.Config.Name)
	if err != nil {
		return cfg, err
	}

	seed := i.Config.Seed
	if seed != 0 {
		seed += int64(i.Index)
	}

	cfg = engine.Config[engine.Processor, engine.PublishPolicy, engine.StopPolicy, engine.ResiliencePolicy]{
		Name:               i.Config.Name,
		Index:              i.Index,
		Size:               i.Network.Len(),
		Substrate:          i.Substrate,
		Peers:              connect,
		Outputs:            i.Machine.Produces,
		Inputs:             i.Machine.Subscribes,
		NewProcessor:       processor.Factory(i.Config.Processor),
		Publish:            publish,
		Stop:               stop,
		Resilience:         resilience,
		ConnectBackoff:     i.Config.ConnectBackoff,
		ConnectTimeout:     i.Config.ConnectTimeout,
		SubscribeTimeout:   i.Config.SubscribeTimeout,
		ResubscribeTimeout: i.Config.ResubscribeTimeout,
		PollJitterMin:      i.Config.JitterMin,
		PollJitterMax:      i.Config.JitterMax,
		Clock:              i.Clock,
		Rand:               common.NewRand(seed),
		Logger:             i.logger,
		Metrics:            i.Metrics,
	}
	return cfg, nil
}

// Build runs the handshake and blocks until the engine is ready.
func (i *Iterum) Build(ctx context.Context) error {
	cfg, err := i.engineConfig()
	if err != nil {
		return err
	}

	start := time.Now()

	e, err := engine.Build(ctx, cfg).Wait(ctx)
	if err != nil {
		return err
	}
	i.Engine = e

	if i.Service != nil {
		i.Service.SetNode(e)
	}

	i.logger.WithField("elapsed", time.Since(start)).Info("Handshake complete")

	return nil
}

func (i *Iterum) observer(extra engine.Observer) engine.Observer {
	observers := []engine.Observer{
		func(s engine.Snapshot) {
			i.logger.WithFields(logrus.Fields{
				"iteration": s.Iteration,
				"run_time":  s.RunTime,
				"published": s.Published,
				"batch":     s.BatchSize,
			}).Debug("Iteration")
		},
		extra,
	}
	if i.Recorder != nil {
		observers = append(observers, trace.Observer(i.Recorder, i.Config.RunID, func(err error) {
			i.logger.WithError(err).Warn("Recording trace")
		}))
	}
	return engine.Observers(observers...)
}

// Run builds the engine if needed and iterates until it stops. observer may
// be nil.
func (i *Iterum) Run(ctx context.Context, observer engine.Observer) error {
	if i.Engine == nil {
		if err := i.Build(ctx); err != nil {
			return err
		}
	}

	err := i.Engine.RunContext(ctx, i.observer(observer))

	i.logger.WithFields(logrus.Fields{
		"iterations": i.Engine.IterationCount(),
		"run_time":   i.Engine.RunTime(),
		"reason":     i.Engine.StopReason().String(),
		"solution":   i.Engine.CurrentSolution(),
	}).Info("Final values")

	return err
}

// Close releases the substrate, the trace database and the service.
func (i *Iterum) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if i.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		keep(i.Service.Shutdown(ctx))
		cancel()
	}
	if i.Substrate != nil {
		keep(i.Substrate.Close())
	}
	if i.redis != nil {
		keep(i.redis.Close())
	}
	if i.Recorder != nil && i.ownRecorder {
		keep(i.Recorder.Close())
	}

	return firstErr
}
