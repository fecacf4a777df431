package engine

import (
	"time"
)

// Snapshot is a read-only copy of an engine's progress, taken after an
// iteration.
type Snapshot struct {
	Node      string
	Iteration uint64
	RunTime   time.Duration
	Published bool
	BatchSize int
	Solution  []float64
}

// Observer is called once per iteration, from the engine's goroutine.
type Observer func(Snapshot)

// Observers chains several observers into one. Nil entries are skipped. Each
// observer gets its own copy of the solution.
func Observers(observers ...Observer) Observer {
	return func(s Snapshot) {
		for _, o := range observers {
			if o != nil {
				c := s
				c.Solution = append([]float64(nil), s.Solution...)
				o(c)
			}
		}
	}
}
