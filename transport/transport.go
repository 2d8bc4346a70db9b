// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// Application data channel labels.
const (
	ControlsLabel  = "controls"
	TelemetryLabel = "telemetry"
)

// ErrMicrophoneUnavailable is returned by a [Microphone] whose capture
// device cannot be opened. The link carries on without local audio.
var ErrMicrophoneUnavailable = errors.New("transport: microphone unavailable")

// Link is one negotiated (or negotiating) peer link. Implementations
// must be safe for concurrent use; the session calls the negotiation
// methods from worker goroutines while Channel and Counters are read
// from elsewhere.
type Link interface {
	// CreateOffer produces the local offer, commits it, and returns it
	// once candidate gathering has completed.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)

	// AcceptOffer commits a remote offer and returns the local answer
	// once candidate gathering has completed.
	AcceptOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	// ApplyAnswer commits the remote answer to a previously created
	// offer.
	ApplyAnswer(answer webrtc.SessionDescription) error

	// AddCandidate applies one remote connectivity candidate.
	AddCandidate(candidate webrtc.ICECandidateInit) error

	// Channel returns the data channel with the given label, if the
	// link has one.
	Channel(label string) (Channel, bool)

	// Counters reads the cumulative receive counters.
	Counters() (Counters, error)

	Close() error
}

// Channel is a send capability on one data channel. Holders may send
// but never close or renegotiate the link.
type Channel interface {
	Label() string
	// Open reports whether the channel is currently open. Sending on a
	// channel that is not open fails.
	Open() bool
	Send(data []byte) error
}

// Handlers are the link's event callbacks. Any of them may be nil. They
// are invoked from pion's goroutines and must not block.
type Handlers struct {
	// Candidate receives each local candidate as it is gathered.
	Candidate func(webrtc.ICECandidateInit)

	// State receives every ICE connection state change.
	State func(webrtc.ICEConnectionState)

	// Message receives the payload of every message on an application
	// data channel.
	Message func(label string, data []byte)

	// Track receives each remote media track exactly once and must
	// read it until it ends. When Track is nil the link reads and
	// discards remote media itself.
	Track func(*RemoteTrack)
}

// Factory builds a new Link. The session calls it once per connection
// attempt.
type Factory func(Handlers) (Link, error)
