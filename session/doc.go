// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the peer session manager: the single
// owner of the signaling socket, the peer link, and the connection
// state.
//
// A [Manager] is an actor. Every input (a dial result, a signaling
// message, a gathered candidate, an ICE state change, a timer firing,
// an Enable or Disable call) is posted to one event channel and handled
// by the goroutine running [Manager.Run]. Events carry the generation
// they were created under; teardown advances the generation, so a
// timer or socket callback belonging to a torn-down attempt is dropped
// instead of reviving it.
//
// State machine:
//
//	Idle --Enable--> Connecting --ICE connected--> Connected
//	Connected --ICE disconnected--> Disconnected --ICE connected--> Connected
//	any --socket lost, negotiation failure, ICE failed--> Disconnected --backoff--> Connecting
//	any --Disable--> Idle
//
// Reconnection waits min(base*factor^n, max) for attempt n and stops
// after the configured number of attempts, leaving the session
// Disconnected with [ErrReconnectBudgetExhausted] until Enable is
// called again. Sending the register message resets n.
//
// While Connected the stats collector samples the link's cumulative
// counters every interval and publishes windowed rates; see [Stats].
package session
