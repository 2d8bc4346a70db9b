// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package control defines the machine command contract: the Vector
// sent on the controls data channel every sampling tick, the sparse
// Override supplied by keyboard shortcuts and on-screen controls, and
// the per-field merge policy that reconciles the two.
//
// The merge policy is a single table (see Policy). Continuous axes
// always come from the input device. Safety booleans are OR-ed, so
// either source can assert an emergency stop and neither can cancel
// the other's assertion. The light bitmask is OR-ed bitwise. Gear and
// speed mode are set-and-hold states where a non-default UI value
// takes priority. Hydraulic lock and power enable have no UI
// representation and always come from the device.
//
// On the wire a Vector is a flat JSON object with snake_case fields,
// a device_type tag, and an epoch-millisecond timestamp.
package control
