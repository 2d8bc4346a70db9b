// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Type is a signaling message type.
type Type string

const (
	TypeRegister  Type = "register"
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"
	TypePing      Type = "ping"
	TypePong      Type = "pong"
)

// Message is one signaling message.
type Message struct {
	Type     Type            `json:"type"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	Identity string          `json:"identity,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Register announces identity to the server.
func Register(identity string) Message {
	return Message{Type: TypeRegister, Identity: identity}
}

// Ping is the heartbeat sent while the socket is open.
func Ping(from string) Message {
	return Message{Type: TypePing, From: from}
}

// Pong answers a Ping.
func Pong(from string) Message {
	return Message{Type: TypePong, From: from}
}

// Description wraps an offer or answer addressed to a peer.
func Description(from, to string, description webrtc.SessionDescription) (Message, error) {
	var kind Type
	switch description.Type {
	case webrtc.SDPTypeOffer:
		kind = TypeOffer
	case webrtc.SDPTypeAnswer:
		kind = TypeAnswer
	default:
		return Message{}, fmt.Errorf("signaling: cannot send %s description", description.Type)
	}
	payload, err := json.Marshal(description)
	if err != nil {
		return Message{}, fmt.Errorf("signaling: encoding %s: %w", kind, err)
	}
	return Message{Type: kind, From: from, To: to, Payload: payload}, nil
}

// Candidate wraps one local ICE candidate addressed to a peer.
func Candidate(from, to string, candidate webrtc.ICECandidateInit) (Message, error) {
	payload, err := json.Marshal(candidate)
	if err != nil {
		return Message{}, fmt.Errorf("signaling: encoding candidate: %w", err)
	}
	return Message{Type: TypeCandidate, From: from, To: to, Payload: payload}, nil
}

// SessionDescription decodes the payload of an offer or answer.
func (m Message) SessionDescription() (webrtc.SessionDescription, error) {
	var description webrtc.SessionDescription
	if m.Type != TypeOffer && m.Type != TypeAnswer {
		return description, fmt.Errorf("signaling: %s message carries no session description", m.Type)
	}
	if err := json.Unmarshal(m.Payload, &description); err != nil {
		return description, fmt.Errorf("signaling: decoding %s: %w", m.Type, err)
	}
	if description.SDP == "" {
		return description, fmt.Errorf("signaling: %s has an empty SDP", m.Type)
	}
	return description, nil
}

// ICECandidate decodes the payload of a candidate message.
func (m Message) ICECandidate() (webrtc.ICECandidateInit, error) {
	var candidate webrtc.ICECandidateInit
	if m.Type != TypeCandidate {
		return candidate, fmt.Errorf("signaling: %s message carries no candidate", m.Type)
	}
	if err := json.Unmarshal(m.Payload, &candidate); err != nil {
		return candidate, fmt.Errorf("signaling: decoding candidate: %w", err)
	}
	return candidate, nil
}
