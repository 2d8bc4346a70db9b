// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package input turns raw controller state into control vectors.
//
// A Source enumerates the connected controllers as Pads (free-text
// identifier, axes, buttons). Every executed sampling tick the Sampler
// classifies the pads into a Profile by scanning identifiers for
// known substrings:
//
//   - a steering-wheel family identifier selects WheelAndAuxJoystick,
//     with the first other pad as the auxiliary boom/bucket stick;
//   - otherwise a game-pad family identifier selects XInputGamepad;
//   - otherwise two or more unrecognized pads select DualJoystickPair.
//
// Classification is redone every tick, so plugging or unplugging a
// controller takes effect on the next sample.
//
// Every axis passes the dead-zone filter before it is used. Gear,
// work light, power, hydraulic lock and (on the wheel) speed mode are
// edge-triggered latches held by the Sampler; they reset to defaults
// whenever the classified profile kind changes so that state from one
// controller layout never leaks into another.
package input
