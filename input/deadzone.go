// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package input

import "math"

// DefaultDeadzone is the axis magnitude below which a stick reads as
// centered.
const DefaultDeadzone = 0.1

// Deadzone snaps v to exactly 0 when |v| < threshold and returns it
// unchanged otherwise.
func Deadzone(v, threshold float64) float64 {
	if math.Abs(v) < threshold {
		return 0
	}
	return v
}

func clamp(v, low, high float64) float64 {
	return math.Max(low, math.Min(high, v))
}
