// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the machine's status frame and the watchdog
// that tracks its freshness.
//
// Frames arrive on the unordered telemetry channel. Each one replaces
// the previous frame in full: there is no merging and the sequence
// number is never used for ordering. The [Watchdog] records when the
// last frame arrived and, on a fixed interval, marks telemetry stale
// once more than the stale threshold has passed while the link is
// connected. Consumers must treat a stale frame as unknown.
package telemetry
