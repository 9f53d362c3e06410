// Package backoff provides pluggable delay strategies. The executor uses
// one to space retry attempts whose handler leaves the wait unset, and the
// capsule poller uses one to back off after consecutive store errors.
// All strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before attempt n (1-indexed).
type Strategy interface {
	// Delay returns how long to wait before attempt n. Attempt 1 is the
	// first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Jitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many retries land simultaneously.
type Jitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewJitter creates an exponential backoff with full jitter.
func NewJitter(initial, maxDelay time.Duration) *Jitter {
	return &Jitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (j *Jitter) Delay(attempt int) time.Duration {
	base := float64(j.Initial) * math.Pow(2, float64(attempt-1))
	if j.Max > 0 && base > float64(j.Max) {
		base = float64(j.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// DefaultStrategy returns the default backoff used by the engine:
// full jitter over an exponential base, 1s initial and 1m max.
func DefaultStrategy() Strategy {
	return NewJitter(1*time.Second, 1*time.Minute)
}
