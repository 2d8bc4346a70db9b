// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package console assembles an operator station from the session,
// input, dispatch, and telemetry packages.
//
// A Console owns one session.Manager. The input sampler emits a
// control vector per executed tick, which the dispatcher merges with
// the UI override and sends on the session's controls channel.
// Telemetry messages from the session feed the watchdog, which the
// session resets whenever it connects or tears down. With
// watchdog.failsafe_estop set, stale telemetry forces the emergency
// stop on outgoing commands.
//
// Everything a user interface needs is exposed as a method: the
// connection state, link statistics, the telemetry snapshot, the log
// stream, override setters, and the voice controls. HandleKey maps the
// keyboard shortcuts onto those setters.
package console
