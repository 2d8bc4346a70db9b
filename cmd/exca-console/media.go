// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/MagicSakuraD/exca-teleop/transport"
)

// mediaSink drains remote tracks. Rendering video and playing audio
// belong to an external player; the sink keeps the RTP receive path
// flowing so the link's counters stay meaningful, and counts what
// would have been played.
type mediaSink struct {
	logger *slog.Logger

	// speakerMuted is read per audio packet.
	speakerMuted func() bool

	videoPackets atomic.Uint64
	audioPackets atomic.Uint64
	audioMuted   atomic.Uint64
}

func newMediaSink(logger *slog.Logger) *mediaSink {
	return &mediaSink{
		logger:       logger.With("component", "media"),
		speakerMuted: func() bool { return false },
	}
}

// Play is the session's track callback. It returns immediately and
// reads the track until it ends.
func (s *mediaSink) Play(track *transport.RemoteTrack) {
	s.logger.Info("remote track",
		"kind", track.Kind().String(),
		"codec", track.Codec().MimeType,
		"stream", track.StreamID(),
	)
	go s.drain(track)
}

func (s *mediaSink) drain(track *transport.RemoteTrack) {
	audio := track.Kind() == webrtc.RTPCodecTypeAudio
	for {
		if _, err := track.ReadRTP(); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("remote track ended", "kind", track.Kind().String(), "error", err)
			}
			return
		}
		switch {
		case !audio:
			s.videoPackets.Add(1)
		case s.speakerMuted():
			s.audioMuted.Add(1)
		default:
			s.audioPackets.Add(1)
		}
	}
}
