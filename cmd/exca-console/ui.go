// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MagicSakuraD/exca-teleop/console"
	"github.com/MagicSakuraD/exca-teleop/control"
	"github.com/MagicSakuraD/exca-teleop/lib/logbook"
	"github.com/MagicSakuraD/exca-teleop/lib/tui"
	"github.com/MagicSakuraD/exca-teleop/session"
	"github.com/MagicSakuraD/exca-teleop/telemetry"
)

const (
	refreshInterval = 100 * time.Millisecond
	logLines        = 8
)

// station is the part of console.Console the UI reads and drives.
type station interface {
	HandleKey(key string) bool
	State() session.State
	Exhausted() bool
	Stats() session.Stats
	Ping() int
	Telemetry() telemetry.Snapshot
	Logs(after uint64) []logbook.Entry
	Vector() (control.Vector, bool)
	InputReady() bool
	VoiceReady() bool
	Muted() bool
	SpeakerMuted() bool
}

var _ station = (*console.Console)(nil)

type refreshMsg time.Time

type model struct {
	station station
	theme   tui.Theme
	width   int

	logs    []logbook.Entry
	lastLog uint64
}

func newModel(s station) model {
	return model{station: s, theme: tui.DefaultTheme}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m model) Init() tea.Cmd {
	return refresh()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c":
			return m, tea.Quit
		}
		m.station.HandleKey(msg.String())
		return m.pullLogs(), nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case refreshMsg:
		return m.pullLogs(), refresh()
	}
	return m, nil
}

// pullLogs appends new entries and keeps the newest logLines.
func (m model) pullLogs() model {
	fresh := m.station.Logs(m.lastLog)
	if len(fresh) == 0 {
		return m
	}
	m.lastLog = fresh[len(fresh)-1].Sequence
	logs := append(append([]logbook.Entry(nil), m.logs...), fresh...)
	if len(logs) > logLines {
		logs = logs[len(logs)-logLines:]
	}
	m.logs = logs
	return m
}

func (m model) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(m.theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)
	alarm := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Alarm)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.BorderColor).
		Padding(0, 1)

	var b strings.Builder

	state := m.station.State()
	stateText := lipgloss.NewStyle().Bold(true).Foreground(m.theme.StateColor(state)).Render(state.String())
	if m.station.Exhausted() {
		stateText += alarm.Render(" (gave up, press C)")
	}
	ping := m.station.Ping()
	pingText := "--"
	if ping > 0 {
		pingText = fmt.Sprintf("%d ms", ping)
	}
	stats := m.station.Stats()
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		header.Render("link"), stateText,
		header.Render("ping"), lipgloss.NewStyle().Foreground(m.theme.PingColor(ping)).Render(pingText))
	fmt.Fprintf(&b, "%s loss %.1f%%  jitter %.1f ms  %.0f fps  %d pkts\n",
		faint.Render("     "), stats.PacketLossPercent, stats.JitterMillis, stats.FrameRate, stats.PacketsReceived)

	b.WriteString(header.Render("command") + " ")
	if vector, ok := m.station.Vector(); ok {
		b.WriteString(describeVector(vector, alarm))
	} else {
		b.WriteString(faint.Render("none yet"))
	}
	if !m.station.InputReady() {
		b.WriteString(alarm.Render("  input unavailable"))
	}
	b.WriteString("\n")

	b.WriteString(header.Render("machine") + " ")
	b.WriteString(describeTelemetry(m.station.Telemetry(), faint, alarm))
	b.WriteString("\n")

	voice := "voice off"
	if m.station.VoiceReady() {
		voice = "mic live"
		if m.station.Muted() {
			voice = "mic muted"
		}
	}
	if m.station.SpeakerMuted() {
		voice += ", speaker muted"
	}
	b.WriteString(header.Render("audio") + " " + voice + "\n")

	var logs strings.Builder
	for _, entry := range m.logs {
		severity := lipgloss.NewStyle().Foreground(m.theme.SeverityColor(entry.Severity))
		fmt.Fprintf(&logs, "%s %s\n", faint.Render(entry.Time.Format("15:04:05")), severity.Render(entry.Message))
	}
	b.WriteString(box.Render(strings.TrimRight(logs.String(), "\n")))
	b.WriteString("\n")

	help := lipgloss.NewStyle().Foreground(m.theme.HelpText)
	b.WriteString(help.Render("space e-stop  h horn  l light  r speed  d/n/b gear  m mic  k speaker  c connect  q quit"))
	return b.String()
}

func describeVector(v control.Vector, alarm lipgloss.Style) string {
	text := fmt.Sprintf("%s gear %s %s light %#02x", v.DeviceType, v.Gear, v.SpeedMode, v.LightCode)
	if v.Horn {
		text += " horn"
	}
	if v.EmergencyStop {
		text += " " + alarm.Render("E-STOP")
	}
	return text
}

func describeTelemetry(snapshot telemetry.Snapshot, faint, alarm lipgloss.Style) string {
	if !snapshot.Present {
		if snapshot.Stale {
			return alarm.Render("telemetry lost")
		}
		return faint.Render("no telemetry")
	}
	frame := snapshot.Frame
	if snapshot.Stale {
		// Stale values are unknown, not last-known-good.
		return alarm.Render(fmt.Sprintf("telemetry stale (%s), last seq %d", snapshot.Age.Round(time.Millisecond), frame.Sequence))
	}
	text := fmt.Sprintf("%s seq %d gear %s %s %.1f km/h", frame.DeviceID, frame.Sequence, frame.Motion.Gear, frame.Motion.SpeedMode, frame.Motion.Speed)
	if frame.Safety.EmergencyStop {
		text += " " + alarm.Render("E-STOP")
	}
	if frame.Safety.FaultCode != 0 {
		text += " " + alarm.Render(fmt.Sprintf("fault %d", frame.Safety.FaultCode))
	}
	return text
}

// runUI runs the terminal UI until the operator quits or ctx ends.
func runUI(ctx context.Context, s station) error {
	program := tea.NewProgram(newModel(s), tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		program.Quit()
	}()
	_, err := program.Run()
	return err
}
