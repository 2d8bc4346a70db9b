// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"math"
	"time"
)

// Backoff holds the reconnection schedule.
type Backoff struct {
	Base        time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultBackoff is 1s growing by 1.5 per attempt, capped at 30s, ten
// attempts.
var DefaultBackoff = Backoff{
	Base:        time.Second,
	Factor:      1.5,
	MaxDelay:    30 * time.Second,
	MaxAttempts: 10,
}

// Delay returns the wait before reconnection attempt n (0-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if delay >= float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}
