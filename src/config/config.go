package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultNetworkFile is the default name of the file describing the
	// network.
	DefaultNetworkFile = "network.yaml"

	// DefaultTraceDir is the default name of the folder containing the badger
	// database of iteration traces.
	DefaultTraceDir = "trace"
)

// Substrate kinds.
const (
	SubstrateInmem  = "inmem"
	SubstrateTCP    = "tcp"
	SubstrateRedis  = "redis"
	SubstrateLibp2p = "libp2p"
)

// Default configuration values.
const (
	DefaultLogLevel           = "info"
	DefaultSubstrate          = SubstrateTCP
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultTCPTimeout         = 1000 * time.Millisecond
	DefaultRedisAddr          = "127.0.0.1:6379"
	DefaultRedisPrefix        = "iterum"
	DefaultRedisTTL           = 3 * time.Second
	DefaultConnectBackoff     = 10 * time.Millisecond
	DefaultConnectTimeout     = 10 * time.Second
	DefaultSubscribeTimeout   = 60 * time.Second
	DefaultResubscribeTimeout = 5 * time.Second
	DefaultJitterMin          = 1 * time.Millisecond
	DefaultJitterMax          = 5 * time.Millisecond
	DefaultNoService          = false
	DefaultTrace              = false
)

// Config contains all the configuration properties of an iterum node.
type Config struct {
	// DataDir is the top-level directory containing iterum configuration and
	// data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry as JSON lines.
	LogFile string `mapstructure:"log-file"`

	// Name is the name of this node. It must match a machine of the network.
	Name string `mapstructure:"name"`

	// NetworkFile describes every machine of the computation, what it
	// publishes, what it subscribes to and whom it dials.
	NetworkFile string `mapstructure:"network"`

	// Substrate selects the messaging layer: inmem, tcp, redis or libp2p.
	Substrate string `mapstructure:"substrate"`

	// BindAddr overrides the address:port of the machine entry. Use
	// AdvertiseAddr when the bound address is not routable.
	BindAddr      string `mapstructure:"listen"`
	AdvertiseAddr string `mapstructure:"advertise"`

	// TCPTimeout is the write deadline of tcp links.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// RedisAddr is the broker used by the redis substrate. Keys and channels
	// are namespaced by RedisPrefix, and a publisher that stays silent for
	// RedisTTL is considered gone.
	RedisAddr   string        `mapstructure:"redis-addr"`
	RedisPrefix string        `mapstructure:"redis-prefix"`
	RedisTTL    time.Duration `mapstructure:"redis-ttl"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Handshake timings.
	ConnectBackoff     time.Duration `mapstructure:"connect-backoff"`
	ConnectTimeout     time.Duration `mapstructure:"connect-timeout"`
	SubscribeTimeout   time.Duration `mapstructure:"subscribe-timeout"`
	ResubscribeTimeout time.Duration `mapstructure:"resubscribe-timeout"`

	// The pause between two passes of the iteration loop is drawn from
	// [JitterMin, JitterMax].
	JitterMin time.Duration `mapstructure:"jitter-min"`
	JitterMax time.Duration `mapstructure:"jitter-max"`

	// Seed seeds the random source of the node. Zero picks one from the
	// clock.
	Seed int64 `mapstructure:"seed"`

	// Trace records every iteration in a badger database under TraceDir.
	// RunID names the run; it defaults to a fresh uuid.
	Trace    bool   `mapstructure:"trace"`
	TraceDir string `mapstructure:"trace-dir"`
	RunID    string `mapstructure:"run"`

	// Processor and policies, selected by kind.
	Processor  common.Spec `mapstructure:"processor"`
	Publish    common.Spec `mapstructure:"publish"`
	Stop       common.Spec `mapstructure:"stop"`
	Resilience common.Spec `mapstructure:"resilience"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values. The default
// computation is the DLMC estimator, publishing every iteration for ten
// seconds.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		NetworkFile:        DefaultNetworkFilePath(),
		Substrate:          DefaultSubstrate,
		TCPTimeout:         DefaultTCPTimeout,
		RedisAddr:          DefaultRedisAddr,
		RedisPrefix:        DefaultRedisPrefix,
		RedisTTL:           DefaultRedisTTL,
		NoService:          DefaultNoService,
		ServiceAddr:        DefaultServiceAddr,
		ConnectBackoff:     DefaultConnectBackoff,
		ConnectTimeout:     DefaultConnectTimeout,
		SubscribeTimeout:   DefaultSubscribeTimeout,
		ResubscribeTimeout: DefaultResubscribeTimeout,
		JitterMin:          DefaultJitterMin,
		JitterMax:          DefaultJitterMax,
		Trace:              DefaultTrace,
		TraceDir:           DefaultTraceDirPath(),
		Processor:          common.Spec{"kind": "dlmc"},
		Publish:            common.Spec{"kind": "always"},
		Stop:               common.Spec{"kind": "time", "duration": "10s"},
		Resilience:         common.Spec{"kind": "trivial"},
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level iterum directory, and updates the network file
// and trace directory if they are still set to their default values.
func (c *Config) SetDataDir(dataDir string) {
	if c.NetworkFile == filepath.Join(c.DataDir, DefaultNetworkFile) {
		c.NetworkFile = filepath.Join(dataDir, DefaultNetworkFile)
	}
	if c.TraceDir == filepath.Join(c.DataDir, DefaultTraceDir) {
		c.TraceDir = filepath.Join(dataDir, DefaultTraceDir)
	}
	c.DataDir = dataDir
}

// Logger returns a formatted logrus Entry, with prefix set to "iterum".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.AddHook(newFileHook(c.LogFile))
		}
	}
	return c.logger.WithField("prefix", "iterum")
}

func newFileHook(path string) logrus.Hook {
	paths := lfshook.PathMap{}
	for _, level := range logrus.AllLevels {
		paths[level] = path
	}
	return lfshook.NewHook(paths, &logrus.JSONFormatter{})
}

// DefaultNetworkFilePath returns the default path of the network file.
func DefaultNetworkFilePath() string {
	return filepath.Join(DefaultDataDir(), DefaultNetworkFile)
}

// DefaultTraceDirPath returns the default path of the trace database.
func DefaultTraceDirPath() string {
	return filepath.Join(DefaultDataDir(), DefaultTraceDir)
}

// DefaultDataDir return the default directory name for top-level iterum config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Iterum")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Iterum")
		} else {
			return filepath.Join(home, ".iterum")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
