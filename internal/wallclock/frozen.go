// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import "time"

// Frozen is a WallClock whose Now always reports the same instant. Timers and
// tickers still run in real time.
type Frozen struct {
	wallClock
	At time.Time
}

// Now returns the frozen instant.
func (f Frozen) Now() time.Time {
	return f.At
}

// Freeze replaces Instance with a Frozen clock and returns a function that
// restores the previous clock.
func Freeze(at time.Time) (restore func()) {
	prev := Instance
	Instance = Frozen{At: at}
	return func() { Instance = prev }
}
