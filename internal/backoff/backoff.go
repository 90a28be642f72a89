// Package backoff computes retry delays for the request pipeline.
package backoff

import (
	"math/rand"
	"time"
)

// overflowCeiling bounds a delay when the exponential math overflows and no
// explicit cap is configured.
const overflowCeiling = time.Hour

// Strategy is a retry-delay schedule. retry is 1-based: the delay returned
// for retry n is slept after the n-th failed attempt, before attempt n+1.
type Strategy interface {
	Delay(retry int, base, max time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential doubles (or multiplies) the base delay per retry with an
// optional uniform jitter fraction: base * multiplier^(retry-1). A max of
// zero means uncapped.
type Exponential struct{}

// Delay implements Strategy.
func (Exponential) Delay(retry int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if retry > 31 {
		retry = 31
	}
	if multiplier <= 0 {
		multiplier = 2.0
	}

	d := time.Duration(float64(base) * pow(multiplier, retry-1))
	if d < 0 {
		// overflowed
		d = capOrCeiling(max)
	}
	if max > 0 && d > max {
		d = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(d) * jitter * rand.Float64())
		if max > 0 && d+extra > max {
			d = max
		} else {
			d += extra
		}
	}
	return d
}

// Decorrelated implements AWS-style decorrelated jitter: a delay drawn
// uniformly from [base, min(cap, base*3^retry)]. Smoother tail latencies
// than pure exponential jitter when many callers retry at once.
type Decorrelated struct{}

// Delay implements Strategy. The multiplier and jitter parameters are
// ignored; decorrelation fixes its own spread.
func (Decorrelated) Delay(retry int, base, max time.Duration, _, _ float64) time.Duration {
	if retry < 1 {
		return base
	}
	if retry > 10 {
		retry = 10
	}

	lower := float64(base)
	upper := lower * pow(3.0, retry)

	limit := float64(capOrCeiling(max))
	if upper > limit || upper < 0 {
		upper = limit
	}
	if upper < lower {
		upper = lower
	}

	d := time.Duration(lower + rand.Float64()*(upper-lower))
	if d < 0 || (max > 0 && d > max) {
		d = capOrCeiling(max)
	}
	return d
}

func capOrCeiling(max time.Duration) time.Duration {
	if max > 0 {
		return max
	}
	return overflowCeiling
}

// clampJitter bounds the jitter fraction to [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// pow is integer exponentiation kept local to avoid pulling in math for a
// hot-path multiply loop.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
