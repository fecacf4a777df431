package policy

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/iterum/src/engine"
)

// TrivialResilience stops the node as soon as every input is gone.
type TrivialResilience struct{}

// OnNoNeighborData implements engine.ResiliencePolicy.
func (TrivialResilience) OnNoNeighborData(dead []string) engine.Action {
	return engine.ActionStop
}

// PatientResilience keeps iterating on the last known values for Grace after
// the inputs first went away, then stops.
type PatientResilience struct {
	Grace time.Duration `mapstructure:"grace"`
	Clock clock.Clock   `mapstructure:"-"`

	since time.Time
}

// OnNoNeighborData implements engine.ResiliencePolicy.
func (p *PatientResilience) OnNoNeighborData(dead []string) engine.Action {
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	now := p.Clock.Now()
	if p.since.IsZero() {
		p.since = now
	}
	if now.Sub(p.since) >= p.Grace {
		return engine.ActionStop
	}
	return engine.ActionWait
}

// ResubscribeResilience subscribes to the dead inputs again, up to Attempts
// times over the life of the engine, then stops.
type ResubscribeResilience struct {
	Attempts int `mapstructure:"attempts"`

	used int
}

// OnNoNeighborData implements engine.ResiliencePolicy.
func (r *ResubscribeResilience) OnNoNeighborData(dead []string) engine.Action {
	if r.used >= r.Attempts {
		return engine.ActionStop
	}
	r.used++
	return engine.ActionResubscribe
}
