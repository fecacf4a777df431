package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/iterum")

	assert.Equal(t, "/tmp/iterum", conf.DataDir)
	assert.Equal(t, filepath.Join("/tmp/iterum", DefaultNetworkFile), conf.NetworkFile)
	assert.Equal(t, filepath.Join("/tmp/iterum", DefaultTraceDir), conf.TraceDir)

	conf.NetworkFile = "/etc/network.cfg"
	conf.SetDataDir("/var/iterum")
	assert.Equal(t, "/etc/network.cfg", conf.NetworkFile)
	assert.Equal(t, filepath.Join("/var/iterum", DefaultTraceDir), conf.TraceDir)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, LogLevel("warn"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("chatty"))
}

func TestLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iterum.log")

	conf := NewDefaultConfig()
	conf.LogFile = path
	conf.Logger().WithField("node", "machine1").Info("hello")

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"node":"machine1"`)
	assert.Contains(t, string(buf), `"msg":"hello"`)
}

func TestDefaultSpecs(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)
	assert.Equal(t, "dlmc", conf.Processor.Kind())
	assert.Equal(t, "always", conf.Publish.Kind())
	assert.Equal(t, "time", conf.Stop.Kind())
	assert.Equal(t, "trivial", conf.Resilience.Kind())
	assert.NotNil(t, conf.Logger())
}
