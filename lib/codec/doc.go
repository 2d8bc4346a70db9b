// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the console's binary encoding: CBOR with Core
// Deterministic Encoding (RFC 8949 §4.2). The operator journal is a
// CBOR sequence written through NewEncoder and read back through
// NewDecoder.
//
// Wire formats that cross the peer link (control vectors, telemetry
// frames, signaling) stay JSON; CBOR is only used for data this
// process writes and reads itself.
package codec
