// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by the exca
// binaries: reporting a fatal error from main before or after the
// structured logger exists.
package process
