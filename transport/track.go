// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is an inbound media track. Reads go through it so the
// link can count received video frames: pion does not decode video,
// so the RTP marker bit, which ends every video frame, is the count.
type RemoteTrack struct {
	remote *webrtc.TrackRemote
	frames *atomic.Uint64
}

func newRemoteTrack(remote *webrtc.TrackRemote, frames *atomic.Uint64) *RemoteTrack {
	return &RemoteTrack{remote: remote, frames: frames}
}

func (t *RemoteTrack) Kind() webrtc.RTPCodecType {
	return t.remote.Kind()
}

func (t *RemoteTrack) ID() string {
	return t.remote.ID()
}

func (t *RemoteTrack) StreamID() string {
	return t.remote.StreamID()
}

func (t *RemoteTrack) Codec() webrtc.RTPCodecParameters {
	return t.remote.Codec()
}

// ReadRTP blocks for the next packet. It fails once the track ends.
func (t *RemoteTrack) ReadRTP() (*rtp.Packet, error) {
	packet, _, err := t.remote.ReadRTP()
	if err != nil {
		return nil, err
	}
	if packet.Marker && t.remote.Kind() == webrtc.RTPCodecTypeVideo {
		t.frames.Add(1)
	}
	return packet, nil
}

// Discard reads and drops packets until the track ends, for tracks
// nobody plays. Frames are still counted.
func (t *RemoteTrack) Discard() {
	for {
		if _, err := t.ReadRTP(); err != nil {
			return
		}
	}
}
