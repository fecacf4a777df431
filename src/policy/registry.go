package policy

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/engine"
)

// Publish policy kinds.
const (
	PublishAlways = "always"
	PublishLinf   = "linf"
)

// Stop policy kinds.
const (
	StopTime        = "time"
	StopIterations  = "iterations"
	StopConvergence = "convergence"
	StopAnyOf       = "any"
)

// Resilience policy kinds.
const (
	ResilienceTrivial     = "trivial"
	ResiliencePatient     = "patient"
	ResilienceResubscribe = "resubscribe"
)

// NewPublishPolicy builds the publish policy described by spec.
func NewPublishPolicy(spec common.Spec) (engine.PublishPolicy, error) {
	switch spec.Kind() {
	case PublishAlways, "":
		return AlwaysPublish{}, spec.Decode(&struct{}{})
	case PublishLinf:
		p := &PublishOnLinfShift{}
		return p, spec.Decode(p)
	default:
		return nil, fmt.Errorf("unknown publish policy %q", spec.Kind())
	}
}

// NewStopPolicy builds the stop policy described by spec. The "any" kind takes
// a "policies" list of nested specs.
func NewStopPolicy(spec common.Spec) (engine.StopPolicy, error) {
	switch spec.Kind() {
	case StopTime:
		s := &StopAfterTime{}
		return s, spec.Decode(s)
	case StopIterations:
		s := &StopAfterIterations{}
		return s, spec.Decode(s)
	case StopConvergence:
		s := &StopOnConvergence{}
		return s, spec.Decode(s)
	case StopAnyOf:
		var params struct {
			Policies []map[string]interface{} `mapstructure:"policies"`
		}
		if err := spec.Decode(&params); err != nil {
			return nil, err
		}
		if len(params.Policies) == 0 {
			return nil, fmt.Errorf("stop policy %q needs at least one policy", StopAnyOf)
		}
		anyOf := NewStopAny()
		for _, p := range params.Policies {
			child, err := NewStopPolicy(common.Spec(p))
			if err != nil {
				return nil, err
			}
			anyOf.Policies = append(anyOf.Policies, child)
		}
		return anyOf, nil
	default:
		return nil, fmt.Errorf("unknown stop policy %q", spec.Kind())
	}
}

// NewResiliencePolicy builds the resilience policy described by spec. clk is
// used by time based policies and may be nil.
func NewResiliencePolicy(spec common.Spec, clk clock.Clock) (engine.ResiliencePolicy, error) {
	switch spec.Kind() {
	case ResilienceTrivial, "":
		return TrivialResilience{}, spec.Decode(&struct{}{})
	case ResiliencePatient:
		r := &PatientResilience{}
		if err := spec.Decode(r); err != nil {
			return nil, err
		}
		r.Clock = clk
		return r, nil
	case ResilienceResubscribe:
		r := &ResubscribeResilience{}
		return r, spec.Decode(r)
	default:
		return nil, fmt.Errorf("unknown resilience policy %q", spec.Kind())
	}
}
