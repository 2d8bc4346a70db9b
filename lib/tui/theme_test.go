// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/MagicSakuraD/exca-teleop/lib/logbook"
	"github.com/MagicSakuraD/exca-teleop/session"
)

func TestStateColor(t *testing.T) {
	theme := DefaultTheme
	tests := []struct {
		state session.State
		want  lipgloss.Color
	}{
		{session.Idle, theme.StateIdle},
		{session.Connecting, theme.StateConnecting},
		{session.Connected, theme.StateConnected},
		{session.Disconnected, theme.StateDisconnected},
	}
	for _, test := range tests {
		if got := theme.StateColor(test.state); got != test.want {
			t.Errorf("StateColor(%v) = %v, want %v", test.state, got, test.want)
		}
	}
}

func TestSeverityColor(t *testing.T) {
	theme := DefaultTheme
	if got := theme.SeverityColor(logbook.SeverityError); got != theme.SeverityError {
		t.Errorf("error color = %v", got)
	}
	if got := theme.SeverityColor("debug"); got != theme.FaintText {
		t.Errorf("unknown severity color = %v, want faint", got)
	}
}

func TestPingColor(t *testing.T) {
	theme := DefaultTheme
	tests := []struct {
		ping int
		want lipgloss.Color
	}{
		{0, theme.FaintText},
		{42, theme.StateConnected},
		{100, theme.SeverityWarning},
		{250, theme.SeverityError},
	}
	for _, test := range tests {
		if got := theme.PingColor(test.ping); got != test.want {
			t.Errorf("PingColor(%d) = %v, want %v", test.ping, got, test.want)
		}
	}
}
