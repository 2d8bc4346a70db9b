// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every timer in the console:
// reconnection backoff, signaling heartbeat, stats sampling, the input
// sampling loop, and the telemetry watchdog.
//
// Components hold a Clock field instead of calling the time package.
// Binaries pass Real(). Tests pass Fake() and drive time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	manager := session.New(session.Config{Clock: c, ...})
//	c.WaitForTimers(1)     // the backoff timer is armed
//	c.Advance(time.Second) // and now it fires
//
// AfterFunc callbacks on the fake clock run synchronously inside
// Advance, so a callback that only enqueues an event is safe. A
// callback must never call Advance itself.
package clock
