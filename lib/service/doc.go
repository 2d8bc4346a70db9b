// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package service runs the HTTP listener behind exca-signal. A Server
// binds its address, exposes the resolved port for tests, and drains
// in-flight requests when its context ends.
package service
