// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds bounded-wait helpers shared by the console's
// tests. Every wait on a channel or condition has a deadline so a
// broken actor loop fails the test instead of hanging it.
package testutil
