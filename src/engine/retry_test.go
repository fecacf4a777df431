package engine

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestRetrierDeadline(t *testing.T) {
	mock := clock.NewMock()
	r := NewRetrier(10*time.Millisecond, 35*time.Millisecond, 0)
	r.Start(mock.Now())

	var waits []time.Duration
	for {
		wait, more := r.Next(mock.Now())
		if !more {
			break
		}
		waits = append(waits, wait)
		mock.Add(wait)
	}

	// attempts at 0, 10, 20 and 30ms; a fifth would start at 40ms
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}, waits)
	assert.Equal(t, 4, r.Attempts())
}

func TestRetrierAttemptCap(t *testing.T) {
	r := NewRetrier(time.Second, 0, 3)
	now := time.Unix(0, 0)
	r.Start(now)

	_, more := r.Next(now)
	assert.True(t, more)
	_, more = r.Next(now.Add(time.Hour))
	assert.True(t, more)
	_, more = r.Next(now.Add(2 * time.Hour))
	assert.False(t, more)
	assert.Equal(t, 3, r.Attempts())
}

func TestRetrierRestart(t *testing.T) {
	r := NewRetrier(time.Second, 2*time.Second, 0)
	now := time.Unix(100, 0)
	r.Start(now)

	_, more := r.Next(now.Add(5 * time.Second))
	assert.False(t, more)

	r.Start(now.Add(5 * time.Second))
	assert.Equal(t, 0, r.Attempts())
	_, more = r.Next(now.Add(5 * time.Second))
	assert.True(t, more)
}

func TestRetrierRemaining(t *testing.T) {
	mock := clock.NewMock()
	r := NewRetrier(10*time.Millisecond, 35*time.Millisecond, 0)
	r.Start(mock.Now())

	left, bounded := r.Remaining(mock.Now())
	assert.True(t, bounded)
	assert.Equal(t, 35*time.Millisecond, left)

	mock.Add(30 * time.Millisecond)
	left, _ = r.Remaining(mock.Now())
	assert.Equal(t, 5*time.Millisecond, left)

	mock.Add(time.Second)
	left, _ = r.Remaining(mock.Now())
	assert.Equal(t, time.Duration(0), left)

	_, bounded = NewRetrier(time.Millisecond, 0, 3).Remaining(mock.Now())
	assert.False(t, bounded)
}
