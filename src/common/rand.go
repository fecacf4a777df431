package common

import (
	"math/rand"
	"time"
)

// NewRand returns an explicitly owned random source. A zero seed picks one
// from the wall clock.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
