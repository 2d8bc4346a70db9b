// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Microphone supplies the local voice track. Track returns
// ErrMicrophoneUnavailable (possibly wrapped) when there is no capture
// device; the link then negotiates receive-only audio.
type Microphone interface {
	Track() (webrtc.TrackLocal, error)
	SetMuted(muted bool)
	Muted() bool
}

// SampleMicrophone is an Opus track fed by an external capture loop
// through WriteSample. Samples written while muted are dropped.
type SampleMicrophone struct {
	streamID string

	mu    sync.Mutex
	track *webrtc.TrackLocalStaticSample
	muted bool
}

// NewSampleMicrophone returns a microphone whose track is created on
// first use.
func NewSampleMicrophone(streamID string) *SampleMicrophone {
	return &SampleMicrophone{streamID: streamID}
}

// Track returns the shared local track. The same track may be bound to
// successive links.
func (m *SampleMicrophone) Track() (webrtc.TrackLocal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.track != nil {
		return m.track, nil
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"microphone", m.streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	m.track = track
	return track, nil
}

// WriteSample forwards one encoded audio sample unless muted.
func (m *SampleMicrophone) WriteSample(sample media.Sample) error {
	m.mu.Lock()
	track, muted := m.track, m.muted
	m.mu.Unlock()
	if track == nil {
		return ErrMicrophoneUnavailable
	}
	if muted {
		return nil
	}
	return track.WriteSample(sample)
}

func (m *SampleMicrophone) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

func (m *SampleMicrophone) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}
