// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package tui

import "math"

var bars = []rune("▁▂▃▄▅▆▇█")

// Readings are plotted on a 0-100 scale, widened to fit outliers.
const (
	scaleMin = 0.0
	scaleMax = 100.0
)

// Sparkline plots the most recent values that fit in width. Gaps are blank.
func Sparkline(values []*float64, width int) string {
	if width > 0 && len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := scaleMin, scaleMax
	for _, v := range values {
		if v != nil {
			lo, hi = math.Min(lo, *v), math.Max(hi, *v)
		}
	}

	out := make([]rune, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = ' '
			continue
		}
		idx := int((*v - lo) / (hi - lo) * float64(len(bars)-1))
		out[i] = bars[idx]
	}
	return string(out)
}
