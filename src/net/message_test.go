package net

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	m, err := NewMessage([]int{0, 3}, []float64{1.5, -2})
	require.NoError(t, err)
	assert.Equal(t, Message{0, 1.5, 3, -2}, m)
	assert.True(t, m.Valid())
	assert.Equal(t, 2, m.Len())

	_, err = NewMessage([]int{0}, nil)
	assert.Error(t, err)
}

func TestMessagePairs(t *testing.T) {
	m := Message{2, 7, -1, 4, 1.5, 3, math.NaN(), 1, 4, 9, 5}

	assert.False(t, m.Valid())
	assert.Equal(t, []IndexValue{
		{Index: 2, Value: 7},
		{Index: -1, Value: 4},
		{Index: -1, Value: 3},
		{Index: -1, Value: 1},
		{Index: 4, Value: 9},
	}, m.Pairs())

	assert.Equal(t, Message{1, 2}, MessageFromPairs(IndexValue{1, 2}))
}

func TestMessageClone(t *testing.T) {
	m := Message{0, 1}
	c := m.Clone()
	c[1] = 5
	assert.Equal(t, 1.0, m[1])
	assert.Nil(t, Message(nil).Clone())
}

func TestLinfShift(t *testing.T) {
	assert.Equal(t, 0.0, LinfShift(Message{0, 1}, Message{0, 1}))
	assert.Equal(t, 2.5, LinfShift(Message{0, 1, 1, 3}, Message{0, 1.5, 1, 0.5}))
	assert.True(t, math.IsInf(LinfShift(Message{0, 1}, nil), 1))
	assert.Equal(t, 0.0, LinfShift(nil, nil))

	nan := math.NaN()
	assert.True(t, math.IsInf(LinfShift(Message{0, 1}, Message{0, nan}), 1))
	assert.True(t, math.IsInf(LinfShift(Message{0, nan, 1, 2}, Message{0, 1, 1, 2}), 1))
	assert.Equal(t, 0.5, LinfShift(Message{0, nan, 1, 2}, Message{0, nan, 1, 2.5}))
}
