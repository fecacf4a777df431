package net

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/peers"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	INMEM = iota
	TCP
	REDIS
	numTestSubstrates // NOTE: must be last
)

var substrateNames = []string{"inmem", "tcp", "redis"}

const (
	testWait = 5 * time.Second
	testTick = 5 * time.Millisecond
)

// testNetwork creates one substrate per name on a shared medium.
type testNetwork struct {
	t     *testing.T
	ttype int
	hub   *InmemHub
	redis *miniredis.Miniredis
	nodes map[string]Substrate
}

func newTestNetwork(t *testing.T, ttype int, names ...string) *testNetwork {
	tn := &testNetwork{
		t:     t,
		ttype: ttype,
		nodes: make(map[string]Substrate),
	}

	switch ttype {
	case INMEM:
		tn.hub = NewInmemHub()
	case REDIS:
		tn.redis = miniredis.RunT(t)
	}

	for _, name := range names {
		tn.nodes[name] = tn.newNode(name)
	}

	t.Cleanup(func() {
		for _, s := range tn.nodes {
			s.Close()
		}
	})

	return tn
}

func (tn *testNetwork) newNode(name string) Substrate {
	logger := common.NewTestEntry(tn.t, name)

	switch tn.ttype {
	case INMEM:
		s, err := tn.hub.Join(name, logger)
		require.NoError(tn.t, err)
		return s
	case TCP:
		s, err := NewTCPSubstrate(name, "127.0.0.1:0", "", time.Second, logger)
		require.NoError(tn.t, err)
		go s.Listen()
		return s
	case REDIS:
		client := redis.NewClient(&redis.Options{Addr: tn.redis.Addr()})
		tn.t.Cleanup(func() { client.Close() })
		s, err := NewRedisSubstrate(name, client, RedisOptions{}, logger)
		require.NoError(tn.t, err)
		return s
	default:
		panic("Unknown substrate type")
	}
}

func (tn *testNetwork) peer(name string) peers.Peer {
	return peers.NewPeer(name, tn.nodes[name].LocalAddr())
}

func (tn *testNetwork) connect(from, to string) {
	require.Eventually(tn.t, func() bool {
		ok, err := tn.nodes[from].Connect(tn.peer(to)).WaitTimeout(time.Second)
		return err == nil && ok
	}, testWait, testTick, "%s could not connect to %s", from, to)
}

func (tn *testNetwork) subscribe(node string, tags ...string) {
	_, err := tn.nodes[node].Subscribe(tags...).WaitTimeout(testWait)
	require.NoError(tn.t, err)
}

// waitLatest polls until node has a value for tag and returns it.
func (tn *testNetwork) waitLatest(node, tag string) Message {
	var res Message
	require.Eventually(tn.t, func() bool {
		if !tn.nodes[node].HasData(tag) {
			return false
		}
		m, err := tn.nodes[node].Latest(tag)
		if err != nil {
			return false
		}
		res = m
		return true
	}, testWait, testTick, "no data for %s at %s", tag, node)
	return res
}

func forEachSubstrate(t *testing.T, f func(t *testing.T, ttype int)) {
	for ttype := 0; ttype < numTestSubstrates; ttype++ {
		ttype := ttype
		t.Run(substrateNames[ttype], func(t *testing.T) {
			f(t, ttype)
		})
	}
}

func TestSubstrate_StartStop(t *testing.T) {
	forEachSubstrate(t, func(t *testing.T, ttype int) {
		tn := newTestNetwork(t, ttype, "a")
		assert.NotEmpty(t, tn.nodes["a"].LocalAddr())
		assert.NoError(t, tn.nodes["a"].Close())

		// closing twice is harmless
		assert.NoError(t, tn.nodes["a"].Close())
	})
}

func TestSubstrate_PublishSubscribe(t *testing.T) {
	forEachSubstrate(t, func(t *testing.T, ttype int) {
		tn := newTestNetwork(t, ttype, "a", "b")
		a, b := tn.nodes["a"], tn.nodes["b"]

		require.NoError(t, a.DeclarePublication("tagA"))
		tn.connect("b", "a")
		tn.subscribe("b", "tagA")

		assert.True(t, b.TagHasSubscription("tagA"))
		assert.False(t, b.HasData("tagA"))

		require.NoError(t, a.Publish("tagA", Message{0, 1.5}))
		assert.Equal(t, Message{0, 1.5}, tn.waitLatest("b", "tagA"))

		// a value is returned once
		assert.False(t, b.HasData("tagA"))
		_, err := b.Latest("tagA")
		assert.Equal(t, ErrNoData, err)
	})
}

func TestSubstrate_LastWriteWins(t *testing.T) {
	forEachSubstrate(t, func(t *testing.T, ttype int) {
		tn := newTestNetwork(t, ttype, "a", "b")
		a := tn.nodes["a"]

		require.NoError(t, a.DeclarePublication("tagA"))
		tn.connect("b", "a")
		tn.subscribe("b", "tagA")

		for i := 1; i <= 5; i++ {
			require.NoError(t, a.Publish("tagA", Message{0, float64(i)}))
		}

		require.Eventually(t, func() bool {
			m := tn.waitLatest("b", "tagA")
			return m[1] == 5
		}, testWait, testTick)
	})
}

func TestSubstrate_Errors(t *testing.T) {
	forEachSubstrate(t, func(t *testing.T, ttype int) {
		tn := newTestNetwork(t, ttype, "a")
		a := tn.nodes["a"]

		assert.Equal(t, ErrNotDeclared, a.Publish("tagA", Message{0, 1}))

		_, err := a.Latest("nope")
		assert.Equal(t, ErrNotSubscribed, err)
		assert.False(t, a.TagHasSubscription("nope"))

		require.NoError(t, a.Close())
		assert.Error(t, a.DeclarePublication("tagA"))
		_, err = a.Subscribe("tagB").WaitTimeout(testWait)
		assert.Error(t, err)
	})
}

func TestSubstrate_SubscribeBeforeDeclare(t *testing.T) {
	forEachSubstrate(t, func(t *testing.T, ttype int) {
		tn := newTestNetwork(t, ttype, "a", "b")

		tn.connect("b", "a")
		sub := tn.nodes["b"].Subscribe("tagA")

		time.Sleep(50 * time.Millisecond)
		assert.False(t, sub.Ready())

		require.NoError(t, tn.nodes["a"].DeclarePublication("tagA"))

		_, err := sub.WaitTimeout(testWait)
		require.NoError(t, err)
	})
}

func TestSubstrate_Relay(t *testing.T) {
	forEachSubstrate(t, func(t *testing.T, ttype int) {
		// a - b - c, c reads the tag of a through b
		tn := newTestNetwork(t, ttype, "a", "b", "c")

		require.NoError(t, tn.nodes["a"].DeclarePublication("tagA"))
		require.NoError(t, tn.nodes["b"].DeclarePublication("tagB"))
		tn.connect("b", "a")
		tn.connect("c", "b")

		tn.subscribe("c", "tagA", "tagB")

		require.NoError(t, tn.nodes["a"].Publish("tagA", Message{0, 1}))
		require.NoError(t, tn.nodes["b"].Publish("tagB", Message{1, 2}))

		assert.Equal(t, Message{0, 1}, tn.waitLatest("c", "tagA"))
		assert.Equal(t, Message{1, 2}, tn.waitLatest("c", "tagB"))
	})
}

func TestSubstrate_LateSubscriberGetsLastValue(t *testing.T) {
	forEachSubstrate(t, func(t *testing.T, ttype int) {
		tn := newTestNetwork(t, ttype, "a", "b")

		require.NoError(t, tn.nodes["a"].DeclarePublication("tagA"))
		require.NoError(t, tn.nodes["a"].Publish("tagA", Message{0, 7}))

		tn.connect("b", "a")
		tn.subscribe("b", "tagA")

		assert.Equal(t, Message{0, 7}, tn.waitLatest("b", "tagA"))
	})
}

func TestSubstrate_PublisherGone(t *testing.T) {
	forEachSubstrate(t, func(t *testing.T, ttype int) {
		tn := newTestNetwork(t, ttype, "a", "b", "c")

		for _, n := range []string{"a", "b", "c"} {
			require.NoError(t, tn.nodes[n].DeclarePublication(fmt.Sprintf("tag%s", n)))
		}
		tn.connect("b", "a")
		tn.connect("c", "b")
		tn.subscribe("c", "taga", "tagb")

		require.NoError(t, tn.nodes["a"].Close())

		require.Eventually(t, func() bool {
			return !tn.nodes["c"].TagHasSubscription("taga")
		}, testWait, testTick)
		assert.True(t, tn.nodes["c"].TagHasSubscription("tagb"))
	})
}

func TestInmemSubstrate_Synchronous(t *testing.T) {
	tn := newTestNetwork(t, INMEM, "a", "b")

	require.NoError(t, tn.nodes["a"].DeclarePublication("tagA"))
	tn.connect("b", "a")
	tn.subscribe("b", "tagA")

	require.NoError(t, tn.nodes["a"].Publish("tagA", Message{0, 1}))
	assert.True(t, tn.nodes["b"].HasData("tagA"))
}

func TestInmemSubstrate_ConnectUnknown(t *testing.T) {
	tn := newTestNetwork(t, INMEM, "a")

	ok, err := tn.nodes["a"].Connect(peers.NewPeer("ghost", "")).Get()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = tn.hub.Join("a", common.NewTestEntry(t, "a"))
	assert.Error(t, err)
}

func TestInmemHub_Disconnect(t *testing.T) {
	tn := newTestNetwork(t, INMEM, "a", "b")
	a, b := tn.nodes["a"], tn.nodes["b"]

	require.NoError(t, a.DeclarePublication("tagA"))
	tn.connect("b", "a")
	tn.subscribe("b", "tagA")

	tn.hub.Disconnect("a", "b")
	assert.False(t, b.TagHasSubscription("tagA"))

	// a new link and a new subscription bring the tag back
	tn.connect("b", "a")
	tn.subscribe("b", "tagA")
	assert.True(t, b.TagHasSubscription("tagA"))

	require.NoError(t, a.Publish("tagA", Message{0, 3}))
	assert.Equal(t, Message{0, 3}, tn.waitLatest("b", "tagA"))
}

func TestRedisSubstrate_PresenceExpiry(t *testing.T) {
	tn := newTestNetwork(t, REDIS, "a", "b")

	require.NoError(t, tn.nodes["a"].DeclarePublication("tagA"))
	tn.subscribe("b", "tagA")

	// simulate a crashed publisher
	tn.redis.Del("iterum:pub:tagA")

	require.Eventually(t, func() bool {
		return !tn.nodes["b"].TagHasSubscription("tagA")
	}, testWait, testTick)
}

func TestRedisSubstrate_StaleLastValue(t *testing.T) {
	tn := newTestNetwork(t, REDIS, "a", "b")

	// left behind by a publisher of an earlier run that never closed
	stale := &Frame{Kind: frameData, From: "a", Tag: "tagA", Epoch: 1, Seq: 9, Values: Message{0, 99}}
	data, err := stale.Marshal()
	require.NoError(t, err)
	require.NoError(t, tn.redis.Set("iterum:last:tagA", string(data)))

	require.NoError(t, tn.nodes["a"].DeclarePublication("tagA"))
	assert.False(t, tn.redis.Exists("iterum:last:tagA"))

	tn.subscribe("b", "tagA")
	assert.False(t, tn.nodes["b"].HasData("tagA"))

	require.NoError(t, tn.nodes["a"].Publish("tagA", Message{0, 1}))
	assert.Equal(t, Message{0, 1}, tn.waitLatest("b", "tagA"))

	// the replayed value expires with its publisher
	assert.Greater(t, tn.redis.TTL("iterum:last:tagA"), time.Duration(0))
}
