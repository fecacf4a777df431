package peers

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyTwoMachines = `machine1
127.0.0.1
1000
tag 1
-
tag 2
-
machine2
---
machine2
127.0.0.1
1100
tag 2
-
tag 1
-
---
`

func TestParseLegacy(t *testing.T) {
	network, err := ParseLegacy(strings.NewReader(legacyTwoMachines))
	require.NoError(t, err)
	require.Equal(t, 2, network.Len())

	m1, ok := network.ByName("machine1")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", m1.Address)
	assert.Equal(t, uint16(1000), m1.Port)
	assert.Equal(t, []string{"tag 1"}, m1.Produces)
	assert.Equal(t, []string{"tag 2"}, m1.Subscribes)
	assert.Equal(t, []string{"machine2"}, m1.Connect)

	m2, ok := network.ByName("machine2")
	require.True(t, ok)
	assert.Empty(t, m2.Connect)
	assert.Equal(t, "tag 2", m2.OutputTag())

	require.NoError(t, network.Validate())
}

func TestParseLegacyBadPort(t *testing.T) {
	_, err := ParseLegacy(strings.NewReader("machine1\n127.0.0.1\nabc\n"))
	assert.Error(t, err)
}

func TestLegacyRoundTrip(t *testing.T) {
	network, err := ParseLegacy(strings.NewReader(legacyTwoMachines))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, network.WriteLegacy(&buf))

	again, err := ParseLegacy(&buf)
	require.NoError(t, err)
	assert.Equal(t, network.Machines, again.Machines)
}

func TestNetworkFileFormats(t *testing.T) {
	dir := t.TempDir()

	network, err := Generate(4, 0.5, "127.0.0.1", 9000, 10)
	require.NoError(t, err)

	for _, name := range []string{"network.yaml", "network.json", "config.cfg"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			file := NewNetworkFile(path)
			require.NoError(t, file.Write(network))

			loaded, err := LoadNetwork(path)
			require.NoError(t, err)
			require.Equal(t, network.Len(), loaded.Len())
			for i, m := range network.Machines {
				assert.Equal(t, m.Name, loaded.Machines[i].Name)
				assert.Equal(t, m.Port, loaded.Machines[i].Port)
				assert.ElementsMatch(t, m.Subscribes, loaded.Machines[i].Subscribes)
				assert.ElementsMatch(t, m.Connect, loaded.Machines[i].Connect)
			}
		})
	}
}

func TestNetworkFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0644))

	_, err := LoadNetwork(path)
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	network, err := Generate(5, 0.4, "127.0.0.1", 1000, 100)
	require.NoError(t, err)
	require.NoError(t, network.Validate())

	// bound = int(0.4*5) = 2
	m1, _ := network.ByName("machine1")
	assert.Equal(t, []string{"tag2", "tag3"}, m1.Subscribes)
	assert.Equal(t, []string{"machine2"}, m1.Connect)
	assert.Equal(t, uint16(1000), m1.Port)

	m3, _ := network.ByName("machine3")
	assert.Equal(t, []string{"tag1", "tag2", "tag4", "tag5"}, m3.Subscribes)

	m5, _ := network.ByName("machine5")
	assert.Empty(t, m5.Connect)
	assert.Equal(t, uint16(1400), m5.Port)

	_, err = Generate(5, 0.05, "127.0.0.1", 1000, 100)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string][]*Machine{
		"self subscription": {
			{Name: "a", Produces: []string{"t1"}, Subscribes: []string{"t1"}},
		},
		"duplicate tag": {
			{Name: "a", Produces: []string{"t1"}},
			{Name: "b", Produces: []string{"t1"}},
		},
		"unknown connect": {
			{Name: "a", Produces: []string{"t1"}, Connect: []string{"z"}},
		},
		"no produced tag": {
			{Name: "a"},
		},
		"orphan subscription": {
			{Name: "a", Produces: []string{"t1"}, Subscribes: []string{"t9"}},
		},
	}

	for name, machines := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, NewNetwork(machines).Validate())
		})
	}
}

func TestConnectPeers(t *testing.T) {
	network, err := Generate(3, 1, "10.0.0.1", 2000, 1)
	require.NoError(t, err)

	ps, err := network.ConnectPeers("machine1")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, NewPeer("machine2", "10.0.0.1:2001"), ps[0])

	host, port, err := ps[0].HostPort()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", host)
	assert.Equal(t, uint16(2001), port)

	idx, others := ExcludePeer(network.Peers(), "machine2")
	assert.Equal(t, 1, idx)
	assert.Len(t, others, 2)
}
