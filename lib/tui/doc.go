// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the look of the operator terminal UI: one color
// palette and the mapping from connection states, log severities, and
// link quality onto it. The bubbletea model itself lives with the
// console binary.
package tui
