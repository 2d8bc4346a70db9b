// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "github.com/pion/webrtc/v4"

// Counters are cumulative receive-side link statistics. Packet and byte
// totals are summed over every inbound RTP stream; jitter prefers
// video.
type Counters struct {
	BytesReceived   uint64
	PacketsReceived uint64
	// PacketsLost may decrease when the sender resets its sequence
	// space.
	PacketsLost int64
	// FramesReceived counts complete video frames read from remote
	// tracks. The stats report has no frame figures because pion does
	// not decode, so PeerLink fills this from its own count.
	FramesReceived uint64

	JitterSeconds float64
	// RoundTripSeconds is zero when no round-trip measurement exists
	// yet.
	RoundTripSeconds float64
}

// CountersFromReport extracts Counters from a pion stats report. The
// round-trip time prefers the remote-inbound report for video, then any
// remote-inbound report, then the succeeded candidate pair.
func CountersFromReport(report webrtc.StatsReport) Counters {
	var counters Counters
	var videoRTT, anyRTT, pairRTT float64
	var videoJitter, anyJitter float64

	for _, entry := range report {
		switch stats := entry.(type) {
		case webrtc.InboundRTPStreamStats:
			counters.BytesReceived += stats.BytesReceived
			counters.PacketsReceived += uint64(stats.PacketsReceived)
			counters.PacketsLost += int64(stats.PacketsLost)
			if stats.Kind == "video" {
				videoJitter = max(videoJitter, stats.Jitter)
			}
			anyJitter = max(anyJitter, stats.Jitter)
		case webrtc.RemoteInboundRTPStreamStats:
			if stats.RoundTripTime <= 0 {
				continue
			}
			if stats.Kind == "video" {
				videoRTT = stats.RoundTripTime
			}
			anyRTT = stats.RoundTripTime
		case webrtc.ICECandidatePairStats:
			if stats.State == webrtc.StatsICECandidatePairStateSucceeded && stats.CurrentRoundTripTime > 0 {
				pairRTT = stats.CurrentRoundTripTime
			}
		}
	}

	switch {
	case videoRTT > 0:
		counters.RoundTripSeconds = videoRTT
	case anyRTT > 0:
		counters.RoundTripSeconds = anyRTT
	default:
		counters.RoundTripSeconds = pairRTT
	}
	if videoJitter > 0 {
		counters.JitterSeconds = videoJitter
	} else {
		counters.JitterSeconds = anyJitter
	}
	return counters
}
