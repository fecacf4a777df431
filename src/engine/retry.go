package engine

import (
	"time"
)

// Retrier is a bounded retry schedule: a fixed backoff between attempts, a
// deadline measured from Start, and an optional cap on attempts. It makes
// decisions from the times it is given and never sleeps.
type Retrier struct {
	Backoff     time.Duration
	Limit       time.Duration
	MaxAttempts int

	start    time.Time
	attempts int
}

// NewRetrier returns a Retrier. A zero limit or attempt cap means unbounded.
func NewRetrier(backoff, limit time.Duration, maxAttempts int) *Retrier {
	return &Retrier{
		Backoff:     backoff,
		Limit:       limit,
		MaxAttempts: maxAttempts,
	}
}

// Start resets the schedule at now.
func (r *Retrier) Start(now time.Time) {
	r.start = now
	r.attempts = 0
}

// Attempts is the number of failures recorded so far.
func (r *Retrier) Attempts() int {
	return r.attempts
}

// Next records a failed attempt at now and returns how long to wait before the
// next one. It returns false once another attempt would break the attempt cap
// or start after the deadline.
func (r *Retrier) Next(now time.Time) (time.Duration, bool) {
	r.attempts++

	if r.MaxAttempts > 0 && r.attempts >= r.MaxAttempts {
		return 0, false
	}

	if r.Limit > 0 && now.Add(r.Backoff).Sub(r.start) > r.Limit {
		return 0, false
	}

	return r.Backoff, true
}

// Remaining returns how much of the deadline is left at now. It returns false
// when the schedule has no deadline.
func (r *Retrier) Remaining(now time.Time) (time.Duration, bool) {
	if r.Limit <= 0 {
		return 0, false
	}
	left := r.Limit - now.Sub(r.start)
	if left < 0 {
		left = 0
	}
	return left, true
}
