// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package tui renders a dashboard session in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/Azure/iot-telemetry-relay/dashboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type (
	// ViewMsg delivers a new session view to the model.
	ViewMsg dashboard.View

	// Model is the bubbletea model for a dashboard session.
	Model struct {
		session *dashboard.Session
		source  string
		view    dashboard.View
		width   int
	}
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)

	temperatureStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFCC00"))
	humidityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1878F0"))
)

// New creates a model for the session; source names the relay being read.
func New(session *dashboard.Session, source string) Model {
	return Model{session: session, source: source, view: session.View()}
}

// Renderer returns a session renderer that forwards views to the program.
func Renderer(program func() *tea.Program) dashboard.Renderer {
	return dashboard.RendererFunc(func(v dashboard.View) {
		if p := program(); p != nil {
			p.Send(ViewMsg(v))
		}
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ViewMsg:
		m.view = dashboard.View(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			return m, m.selectNext(-1)
		case "down", "j":
			return m, m.selectNext(1)
		}
	}
	return m, nil
}

// Selection redraws through the renderer, which sends a ViewMsg; it runs
// as a command so the send happens off the event loop.
func (m Model) selectNext(delta int) tea.Cmd {
	return func() tea.Msg {
		m.session.SelectNext(delta)
		return nil
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("IoT Hub telemetry"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(m.source))
	b.WriteString("  ")
	b.WriteString(DeviceCount(len(m.view.Devices)))
	b.WriteString("\n\n")

	var selected string
	if m.view.Selected != nil {
		selected = m.view.Selected.DeviceID
	}
	for _, id := range m.view.Devices {
		if id == selected {
			b.WriteString(selectedStyle.Render("> " + id))
		} else {
			b.WriteString("  " + id)
		}
		b.WriteString("\n")
	}
	if len(m.view.Devices) == 0 {
		b.WriteString(mutedStyle.Render("  waiting for telemetry..."))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if snap := m.view.Selected; snap != nil {
		width := m.width - 30
		b.WriteString(row("Temperature (ºC)", snap.Temperature, width,
			temperatureStyle))
		b.WriteString(row("Humidity (%)", snap.Humidity, width,
			humidityStyle))
		if n := len(snap.Times); n > 0 {
			b.WriteString(mutedStyle.Render(
				"last reading " + snap.Times[n-1].Format("15:04:05"),
			))
			b.WriteString("\n")
		}
	}

	if m.view.Discarded > 0 {
		b.WriteString(mutedStyle.Render(
			fmt.Sprintf("%d malformed messages discarded", m.view.Discarded),
		))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("↑/↓ select device · q quit"))
	return b.String()
}

func row(
	label string,
	values []*float64,
	width int,
	style lipgloss.Style,
) string {
	latest := "   -"
	if v, ok := dashboard.Latest(values); ok {
		latest = fmt.Sprintf("%6.1f", v)
	}
	return fmt.Sprintf("%-17s %s  %s\n",
		label,
		latest,
		style.Render(Sparkline(values, width)),
	)
}

// DeviceCount labels the number of tracked devices.
func DeviceCount(n int) string {
	if n == 1 {
		return "1 device"
	}
	return fmt.Sprintf("%d devices", n)
}

// Line renders a view as a single line of plain text.
func Line(v dashboard.View) string {
	if v.Selected == nil {
		return DeviceCount(len(v.Devices))
	}

	var b strings.Builder
	b.WriteString(v.Selected.DeviceID)
	if t, ok := dashboard.Latest(v.Selected.Temperature); ok {
		fmt.Fprintf(&b, " temperature=%g", t)
	}
	if h, ok := dashboard.Latest(v.Selected.Humidity); ok {
		fmt.Fprintf(&b, " humidity=%g", h)
	}
	fmt.Fprintf(&b, " (%s)", DeviceCount(len(v.Devices)))
	return b.String()
}
