// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"slices"
	"strings"
)

var levels = []rune("▁▂▃▄▅▆▇█")

// sparkline renders values into at most width cells. Each cell
// averages a contiguous run of values, newest on the right. A zero
// [low, high] range scales to the data instead.
func sparkline(values []float64, width int, low, high float64) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if low == 0 && high == 0 {
		low, high = slices.Min(values), slices.Max(values)
	}

	cells := min(width, len(values))
	var builder strings.Builder
	for cell := range cells {
		start := cell * len(values) / cells
		end := (cell + 1) * len(values) / cells
		sum := 0.0
		for _, value := range values[start:end] {
			sum += value
		}
		builder.WriteRune(level(sum/float64(end-start), low, high))
	}
	return builder.String()
}

func level(value, low, high float64) rune {
	if high <= low {
		return levels[0]
	}
	index := int((value - low) / (high - low) * float64(len(levels)-1))
	return levels[max(0, min(len(levels)-1, index))]
}
