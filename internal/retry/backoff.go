// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff doubles the wait after every failed attempt, from
// MinInterval up to MaxInterval.
type ExponentialBackoff struct {
	// MaxAttempts bounds the number of attempts; zero means unlimited.
	MaxAttempts uint64

	// MinInterval defaults to 1/4s.
	MinInterval time.Duration

	// MaxInterval defaults to 30s.
	MaxInterval time.Duration

	// NoJitter disables the +/-5% spread applied to every wait.
	NoJitter bool
}

// Next implements Policy.
func (b *ExponentialBackoff) Next(attempt uint64) (time.Duration, bool) {
	if b.MaxAttempts != 0 && attempt >= b.MaxAttempts {
		return 0, false
	}

	lo := b.MinInterval
	if lo <= 0 {
		lo = time.Second / 4
	}
	hi := b.MaxInterval
	if hi <= 0 {
		hi = 30 * time.Second
	}
	hi = max(hi, lo)

	wait := math.Min(math.Pow(2, float64(attempt-1))*float64(lo), float64(hi))
	if !b.NoJitter {
		// #nosec G404
		wait *= .95 + .1*rand.Float64()
	}
	return time.Duration(wait), true
}
