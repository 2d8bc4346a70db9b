// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the exca binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit]: short git SHA of the build
//   - [GitDirty]: "true" if there were uncommitted changes
//   - [BuildTime]: UTC timestamp of the build
//   - [Version]: semantic version string, set by hand for releases
//
// They default to "unknown" and "0.1.0-dev" in development builds and
// test runs. [Info] formats them for --version; [Print] writes the
// full line for one binary.
package version
