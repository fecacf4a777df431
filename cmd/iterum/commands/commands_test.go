package commands

import (
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenConfig(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config.cfg")

	cmd := NewGenConfigCmd()
	cmd.SetArgs([]string{"--nodes", "5", "--alpha", "0.4", "--output", out})
	require.NoError(t, cmd.Execute())

	network, err := peers.LoadNetwork(out)
	require.NoError(t, err)
	require.Equal(t, 5, network.Len())

	m, ok := network.ByName("machine3")
	require.True(t, ok)
	assert.Equal(t, uint16(1200), m.Port)
	assert.Equal(t, []string{"tag1", "tag2", "tag4", "tag5"}, m.Subscribes)
	assert.Equal(t, []string{"machine4"}, m.Connect)
}

func TestGenConfigBadAlpha(t *testing.T) {
	cmd := NewGenConfigCmd()
	cmd.SetArgs([]string{"--alpha", "2", "--output", filepath.Join(t.TempDir(), "n.yaml")})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	assert.Error(t, cmd.Execute())
}
