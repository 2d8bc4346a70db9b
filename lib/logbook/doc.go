// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

// Package logbook is the operator-visible log: an append-only sequence
// of entries (time, message, severity) that the console UI tails.
//
// Components do not write to the Book directly. They log through slog
// as usual, and the process installs a Handler that forwards each
// record to its normal destination and appends Info-and-above records
// to the Book. A Journal can be attached to persist entries as a CBOR
// sequence.
package logbook
