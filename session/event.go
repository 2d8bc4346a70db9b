// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/MagicSakuraD/exca-teleop/signaling"
	"github.com/MagicSakuraD/exca-teleop/transport"
)

type eventKind int

const (
	eventEnable eventKind = iota
	eventDisable
	eventDialed
	eventRegistered
	eventSendFailed
	eventSignalingClosed
	eventMessage
	eventLocalDescription
	eventLocalCandidate
	eventICEState
	eventReconnect
	eventHeartbeat
	eventStatsDue
)

// event is one input to the Manager loop. Only the fields for its kind
// are set.
type event struct {
	kind       eventKind
	generation uint64

	conn        signaling.Conn
	err         error
	message     signaling.Message
	link        transport.Link
	description webrtc.SessionDescription
	candidate   webrtc.ICECandidateInit
	iceState    webrtc.ICEConnectionState
}

// discard releases what a stale event owns. A socket dialed for an
// abandoned attempt is closed in the background.
func (ev event) discard() {
	if ev.kind == eventDialed && ev.conn != nil {
		go ev.conn.Close()
	}
}
