// Package backoff provides retry delay strategies for capacity warm-up and
// transient dispatch failures. All strategies are stateless and safe for
// concurrent use; the caller owns the attempt counter and the overall
// deadline (the phase timeout), not the strategy.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
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
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// Exponential doubles the delay each attempt, capped at Max. With Jitter
// set, the delay is drawn uniformly from [0, capped delay] to avoid
// synchronized retries across workflows sharing a worker role.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential backoff strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter {
		d = rand.Float64() * d //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return time.Duration(d)
}

// Warmup returns the strategy used while waiting for worker capacity:
// 1s, 2s, 4s, then 4s repeating. The retry loop as a whole is bounded by
// the phase timeout, not by a separate counter.
func Warmup() Strategy {
	return &Exponential{Initial: time.Second, Max: 4 * time.Second}
}
