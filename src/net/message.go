package net

import (
	"fmt"
	"math"
)

// Message is the logical wire shape of a published value: a flat list of
// (index, value) pairs where index is a position in the global state vector.
type Message []float64

// IndexValue is one decoded pair of a Message.
type IndexValue struct {
	Index int
	Value float64
}

// NewMessage builds a Message from parallel index and value slices.
func NewMessage(indices []int, values []float64) (Message, error) {
	if len(indices) != len(values) {
		return nil, fmt.Errorf("message has %d indices but %d values", len(indices), len(values))
	}
	m := make(Message, 0, 2*len(indices))
	for i, idx := range indices {
		m = append(m, float64(idx), values[i])
	}
	return m, nil
}

// MessageFromPairs builds a Message from decoded pairs.
func MessageFromPairs(pairs ...IndexValue) Message {
	m := make(Message, 0, 2*len(pairs))
	for _, p := range pairs {
		m = append(m, float64(p.Index), p.Value)
	}
	return m
}

// Valid reports whether the message holds a whole number of pairs.
func (m Message) Valid() bool {
	return len(m)%2 == 0
}

// Len returns the number of complete pairs.
func (m Message) Len() int {
	return len(m) / 2
}

// Pairs decodes the message. A trailing unpaired element is ignored. Indices
// that are negative, fractional or not finite decode as -1 so that receivers
// can discard them with a single range check.
func (m Message) Pairs() []IndexValue {
	res := make([]IndexValue, 0, m.Len())
	for i := 0; i+1 < len(m); i += 2 {
		res = append(res, IndexValue{Index: decodeIndex(m[i]), Value: m[i+1]})
	}
	return res
}

// Clone returns a copy that does not share storage with m.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	c := make(Message, len(m))
	copy(c, m)
	return c
}

func decodeIndex(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return -1
	}
	return int(f)
}

// LinfShift is the largest absolute component-wise difference between a and b.
// Messages of different lengths are infinitely far apart, and so is a
// component that is NaN on one side only. Two NaNs count as unchanged.
func LinfShift(a, b Message) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	shift := 0.0
	for i := range a {
		nanA, nanB := math.IsNaN(a[i]), math.IsNaN(b[i])
		switch {
		case nanA && nanB:
			continue
		case nanA || nanB:
			return math.Inf(1)
		}
		if d := math.Abs(a[i] - b[i]); d > shift {
			shift = d
		}
	}
	return shift
}
