package policy

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/mosaicnetworks/iterum/src/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomMessage(r *rand.Rand) net.Message {
	n := 1 + r.Intn(4)
	m := make(net.Message, 0, 2*n)
	for i := 0; i < n; i++ {
		m = append(m, float64(i), r.NormFloat64()*100)
	}
	return m
}

func TestPublishOnLinfShift(t *testing.T) {
	p := &PublishOnLinfShift{Threshold: 0.5}

	assert.False(t, p.ShouldPublish(net.Message{0, 1}, net.Message{0, 1.5}))
	assert.True(t, p.ShouldPublish(net.Message{0, 1}, net.Message{0, 1.6}))
	assert.True(t, p.ShouldPublish(net.Message{0, 1, 1, 2}, net.Message{0, 1, 1, 0}))
	assert.True(t, p.ShouldPublish(net.Message{0, 1}, net.Message{0, 1, 1, 1}))
	assert.True(t, p.ShouldPublish(net.Message{0, 1}, net.Message{0, math.NaN()}))

	zero := &PublishOnLinfShift{}
	assert.True(t, zero.ShouldPublish(net.Message{0, 1}, net.Message{0, 1}))
	assert.True(t, AlwaysPublish{}.ShouldPublish(nil, nil))
}

func TestPublishIdempotence(t *testing.T) {
	r := common.NewRand(7)
	for i := 0; i < 200; i++ {
		v := randomMessage(r)
		threshold := r.Float64()*10 + 1e-9
		p := &PublishOnLinfShift{Threshold: threshold}
		assert.False(t, p.ShouldPublish(v, v.Clone()), "threshold %v message %v", threshold, v)
	}
}

func TestStopAfterTime(t *testing.T) {
	s := &StopAfterTime{Duration: time.Second}
	assert.False(t, s.ShouldStop(1, time.Second))
	assert.True(t, s.ShouldStop(2, time.Second+1))
}

func TestStopAfterIterations(t *testing.T) {
	s := &StopAfterIterations{N: 3}
	assert.False(t, s.ShouldStop(2, 0))
	assert.True(t, s.ShouldStop(3, 0))
}

// Once a stop policy fires, it keeps firing for any later iteration and time.
func TestStopMonotonicity(t *testing.T) {
	r := common.NewRand(3)

	policies := map[string]func() engine.StopPolicy{
		"time":       func() engine.StopPolicy { return &StopAfterTime{Duration: 50 * time.Millisecond} },
		"iterations": func() engine.StopPolicy { return &StopAfterIterations{N: 20} },
		"any": func() engine.StopPolicy {
			return NewStopAny(&StopAfterTime{Duration: time.Hour}, &StopAfterIterations{N: 30})
		},
	}

	for name, newPolicy := range policies {
		t.Run(name, func(t *testing.T) {
			s := newPolicy()
			var n uint64
			var elapsed time.Duration
			fired := false
			for i := 0; i < 500; i++ {
				n += uint64(r.Intn(3))
				elapsed += time.Duration(r.Intn(1000)) * time.Microsecond
				stop := s.ShouldStop(n, elapsed)
				if fired {
					require.True(t, stop, "policy resurrected at n=%d t=%v", n, elapsed)
				}
				fired = fired || stop
			}
			assert.True(t, fired)

			// even going back in time
			assert.True(t, s.ShouldStop(0, 0))
		})
	}
}

func TestStopOnConvergence(t *testing.T) {
	s := &StopOnConvergence{Tolerance: 0.1, Patience: 2}

	s.ObserveShift(net.Message{0, 1}, net.Message{0, 2})
	assert.False(t, s.ShouldStop(1, 0))

	s.ObserveShift(net.Message{0, 2}, net.Message{0, 2.05})
	assert.False(t, s.ShouldStop(2, 0))

	// a jump resets the count
	s.ObserveShift(net.Message{0, 2.05}, net.Message{0, 3})
	assert.False(t, s.ShouldStop(3, 0))

	s.ObserveShift(net.Message{0, 3}, net.Message{0, 3})
	s.ObserveShift(net.Message{0, 3}, net.Message{0, 3.01})
	assert.True(t, s.ShouldStop(5, 0))

	s.ObserveShift(net.Message{0, 3}, net.Message{0, 30})
	assert.True(t, s.ShouldStop(6, 0))
}

func TestStopAnyForwardsShifts(t *testing.T) {
	conv := &StopOnConvergence{Tolerance: 1, Patience: 1}
	s := NewStopAny(&StopAfterIterations{N: 100}, conv)

	assert.False(t, s.ShouldStop(1, 0))
	s.ObserveShift(net.Message{0, 1}, net.Message{0, 1})
	assert.True(t, s.ShouldStop(2, 0))
}

func TestResilience(t *testing.T) {
	assert.Equal(t, engine.ActionStop, TrivialResilience{}.OnNoNeighborData([]string{"a"}))

	r := &ResubscribeResilience{Attempts: 2}
	assert.Equal(t, engine.ActionResubscribe, r.OnNoNeighborData(nil))
	assert.Equal(t, engine.ActionResubscribe, r.OnNoNeighborData(nil))
	assert.Equal(t, engine.ActionStop, r.OnNoNeighborData(nil))

	mock := clock.NewMock()
	p := &PatientResilience{Grace: time.Second, Clock: mock}
	assert.Equal(t, engine.ActionWait, p.OnNoNeighborData(nil))
	mock.Add(500 * time.Millisecond)
	assert.Equal(t, engine.ActionWait, p.OnNoNeighborData(nil))
	mock.Add(500 * time.Millisecond)
	assert.Equal(t, engine.ActionStop, p.OnNoNeighborData(nil))
}

func TestRegistry(t *testing.T) {
	pub, err := NewPublishPolicy(common.Spec{"kind": "linf", "threshold": 0.25})
	require.NoError(t, err)
	assert.Equal(t, &PublishOnLinfShift{Threshold: 0.25}, pub)

	pub, err = NewPublishPolicy(nil)
	require.NoError(t, err)
	assert.Equal(t, AlwaysPublish{}, pub)

	_, err = NewPublishPolicy(common.Spec{"kind": "sometimes"})
	assert.Error(t, err)

	stop, err := NewStopPolicy(common.Spec{"kind": "time", "duration": "30s"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, stop.(*StopAfterTime).Duration)

	stop, err = NewStopPolicy(common.Spec{
		"kind": "any",
		"policies": []interface{}{
			map[string]interface{}{"kind": "iterations", "iterations": 10},
			map[string]interface{}{"kind": "convergence", "tolerance": "0.001", "patience": 5},
		},
	})
	require.NoError(t, err)
	anyOf := stop.(*StopAny)
	require.Len(t, anyOf.Policies, 2)
	assert.Equal(t, uint64(10), anyOf.Policies[0].(*StopAfterIterations).N)
	assert.Equal(t, 5, anyOf.Policies[1].(*StopOnConvergence).Patience)

	_, err = NewStopPolicy(common.Spec{"kind": "any"})
	assert.Error(t, err)
	_, err = NewStopPolicy(common.Spec{"kind": "time", "durashun": "1s"})
	assert.Error(t, err)

	mock := clock.NewMock()
	res, err := NewResiliencePolicy(common.Spec{"kind": "patient", "grace": "2s"}, mock)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, res.(*PatientResilience).Grace)
	assert.Equal(t, mock, res.(*PatientResilience).Clock)

	res, err = NewResiliencePolicy(common.Spec{"kind": "resubscribe", "attempts": 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.(*ResubscribeResilience).Attempts)

	_, err = NewResiliencePolicy(common.Spec{"kind": "pray"}, nil)
	assert.Error(t, err)
}
