package processor

import (
	"fmt"

	"github.com/mosaicnetworks/iterum/src/common"
	"github.com/mosaicnetworks/iterum/src/engine"
)

// Processor kinds.
const (
	KindAverage = "average"
	KindJacobi  = "jacobi"
	KindDLMC    = "dlmc"
)

func errIndex(field string, index, size int) error {
	return fmt.Errorf("%s has %d entries, no entry for node %d", field, size, index)
}

// New builds the processor described by spec for the node in topo.
func New(spec common.Spec, topo engine.Topology) (engine.Processor, error) {
	switch spec.Kind() {
	case KindAverage:
		var conf AverageConfig
		if err := spec.Decode(&conf); err != nil {
			return nil, err
		}
		return NewAverage(conf, topo)
	case KindJacobi:
		var conf JacobiConfig
		if err := spec.Decode(&conf); err != nil {
			return nil, err
		}
		return NewJacobi(conf, topo)
	case KindDLMC:
		conf := DefaultDLMCConfig()
		if err := spec.Decode(&conf); err != nil {
			return nil, err
		}
		return NewDLMC(conf, topo)
	default:
		return nil, fmt.Errorf("unknown processor %q", spec.Kind())
	}
}

// Factory returns a processor factory for engine.Config.
func Factory(spec common.Spec) func(engine.Topology) (engine.Processor, error) {
	return func(topo engine.Topology) (engine.Processor, error) {
		return New(spec, topo)
	}
}
