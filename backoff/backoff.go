// Package backoff provides jittered exponential delay computation for
// throttle windows and retry scheduling. Pure computation, no IO.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultBase   = time.Second
	DefaultFactor = 2.0
	DefaultMax    = 4 * time.Minute
)

// maxExponent caps the growth exponent so factor^attempt cannot overflow
// time.Duration before the clamp to max is applied.
const maxExponent = 32

// Delay computes base * factor^attempt, clamped to max, with equal jitter:
// the deterministic floor is half the computed delay and the upper half is
// uniformly random. The floor guarantees forward progress while the random
// half decorrelates concurrent clients so failed exchanges do not produce
// synchronized retry storms.
//
// Negative attempts are treated as zero. Non-positive base, factor below 1,
// or non-positive max fall back to the package defaults.
func Delay(attempt int, base time.Duration, factor float64, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxExponent {
		attempt = maxExponent
	}
	if base <= 0 {
		base = DefaultBase
	}
	if factor < 1 {
		factor = DefaultFactor
	}
	if max <= 0 {
		max = DefaultMax
	}

	scaled := float64(base) * math.Pow(factor, float64(attempt))
	delay := max
	if scaled < float64(max) {
		delay = time.Duration(scaled)
	}
	if delay < base {
		delay = base
	}

	half := delay / 2
	jitter := time.Duration(rand.Int64N(int64(half) + 1))
	return half + jitter
}
