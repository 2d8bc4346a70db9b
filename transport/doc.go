// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport owns the peer link between the operator console and
// the machine.
//
// [Link] is the narrow surface the session manager drives: produce or
// accept a session description, apply the remote answer and trickled
// candidates, look up application data channels by label, read the
// cumulative link counters, and close. [PeerLink] implements it on
// pion/webrtc. Link events (local candidates, ICE state changes, data
// channel messages, remote media tracks) are delivered through the
// callbacks in [Handlers]; the session serializes them onto its own
// goroutine.
//
// Both application channels, [ControlsLabel] and [TelemetryLabel], are
// unordered with zero retransmits. A lost command is superseded by the
// next tick, so the link never queues or retries.
//
// Offers and answers are produced vanilla-ICE style: the description is
// returned only after candidate gathering completes, so it carries
// every local candidate. Candidates are still reported individually
// through [Handlers.Candidate] for peers that apply them as they arrive.
//
// [Counters] are the cumulative receive-side statistics extracted from
// the pion stats report. Windowed rates are derived by the session's
// stats collector.
package transport
