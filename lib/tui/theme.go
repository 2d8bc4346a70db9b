// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/MagicSakuraD/exca-teleop/lib/logbook"
	"github.com/MagicSakuraD/exca-teleop/session"
)

// Theme is the palette of the operator UI. All colors are ANSI
// 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Connection states.
	StateIdle         lipgloss.Color
	StateConnecting   lipgloss.Color
	StateConnected    lipgloss.Color
	StateDisconnected lipgloss.Color

	// Log severities.
	SeverityInfo    lipgloss.Color
	SeverityWarning lipgloss.Color
	SeverityError   lipgloss.Color

	// Alarm is used for an asserted emergency stop and stale
	// telemetry.
	Alarm lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
}

// StateColor returns the color for a connection state.
func (theme Theme) StateColor(state session.State) lipgloss.Color {
	switch state {
	case session.Connecting:
		return theme.StateConnecting
	case session.Connected:
		return theme.StateConnected
	case session.Disconnected:
		return theme.StateDisconnected
	default:
		return theme.StateIdle
	}
}

// SeverityColor returns the color for a log severity, FaintText for
// unknown values.
func (theme Theme) SeverityColor(severity logbook.Severity) lipgloss.Color {
	switch severity {
	case logbook.SeverityInfo:
		return theme.SeverityInfo
	case logbook.SeverityWarning:
		return theme.SeverityWarning
	case logbook.SeverityError:
		return theme.SeverityError
	default:
		return theme.FaintText
	}
}

// PingColor grades a round-trip time: green under 100 ms, amber under
// 250 ms, red above. Zero (unknown) is faint.
func (theme Theme) PingColor(pingMillis int) lipgloss.Color {
	switch {
	case pingMillis <= 0:
		return theme.FaintText
	case pingMillis < 100:
		return theme.StateConnected
	case pingMillis < 250:
		return theme.SeverityWarning
	default:
		return theme.SeverityError
	}
}

// DefaultTheme is the built-in dark-terminal scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	StateIdle:         lipgloss.Color("245"), // gray
	StateConnecting:   lipgloss.Color("220"), // amber
	StateConnected:    lipgloss.Color("114"), // green
	StateDisconnected: lipgloss.Color("196"), // red

	SeverityInfo:    lipgloss.Color("75"),
	SeverityWarning: lipgloss.Color("220"),
	SeverityError:   lipgloss.Color("196"),

	Alarm: lipgloss.Color("196"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
}
