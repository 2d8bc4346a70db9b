// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch merges each sampled control vector with the UI
// override and sends the result on the controls channel.
//
// A tick whose channel is missing or not open is skipped: nothing is
// queued and nothing is retried, because the next tick supersedes it.
package dispatch
