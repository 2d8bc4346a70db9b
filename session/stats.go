// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"math"
	"time"

	"github.com/MagicSakuraD/exca-teleop/transport"
)

// Stats is one link-quality sample. PacketLossPercent is windowed over
// the last sampling interval, never cumulative.
type Stats struct {
	RTTMillis         float64 `json:"rtt_ms"`
	JitterMillis      float64 `json:"jitter_ms"`
	PacketLossPercent float64 `json:"packet_loss_rate"`
	PacketsReceived   uint64  `json:"packets_received"`
	BytesReceived     uint64  `json:"bytes_received"`
	FrameRate         float64 `json:"frame_rate"`
}

// PingMillis is the rounded round-trip time, 0 when unknown.
func (s Stats) PingMillis() int {
	return int(math.Round(s.RTTMillis))
}

// collector derives Stats from consecutive counter readings.
type collector struct {
	previous   transport.Counters
	previousAt time.Time
	baseline   bool
}

// reset forgets the baseline; the next sample reports zero loss.
func (c *collector) reset() {
	*c = collector{}
}

func (c *collector) sample(counters transport.Counters, at time.Time) Stats {
	stats := Stats{
		RTTMillis:       counters.RoundTripSeconds * 1000,
		JitterMillis:    counters.JitterSeconds * 1000,
		PacketsReceived: counters.PacketsReceived,
		BytesReceived:   counters.BytesReceived,
	}

	if c.baseline {
		// Counter resets produce negative deltas; treat them as zero.
		lost := max(counters.PacketsLost-c.previous.PacketsLost, 0)
		received := max(int64(counters.PacketsReceived)-int64(c.previous.PacketsReceived), 0)
		if total := lost + received; total > 0 {
			stats.PacketLossPercent = 100 * float64(lost) / float64(total)
		}
		frames := max(int64(counters.FramesReceived)-int64(c.previous.FramesReceived), 0)
		if elapsed := at.Sub(c.previousAt); elapsed > 0 {
			stats.FrameRate = float64(frames) / elapsed.Seconds()
		}
	}

	c.previous = counters
	c.previousAt = at
	c.baseline = true
	return stats
}
