package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	paneStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	header := titleStyle.Render("fuel watch") + faintStyle.Render("  "+m.addr)

	if !m.connected {
		body := m.spinner.View() + " waiting for daemon"
		if m.lastErr != nil {
			body += "\n" + errStyle.Render(m.lastErr.Error())
		}
		return header + "\n\n" + body + "\n\n" + m.helpLine()
	}

	return strings.Join([]string{
		header,
		m.statusPane(),
		m.runningPane(),
		m.eventsPane(),
		m.helpLine(),
	}, "\n")
}

func (m *Model) statusPane() string {
	if m.snap == nil {
		return paneStyle.Render(m.spinner.View() + " waiting for first snapshot")
	}

	var parts []string
	if m.snap.Paused {
		parts = append(parts, warnStyle.Render("PAUSED"))
	} else {
		parts = append(parts, okStyle.Render("running"))
	}
	parts = append(parts, fmt.Sprintf("ready %d", m.snap.Ready))

	keys := make([]string, 0, len(m.snap.StatusCounts))
	for k := range m.snap.StatusCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, m.snap.StatusCounts[k]))
	}
	for agent, secs := range m.snap.AgentBackoff {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%s backoff %ds", agent, secs)))
	}
	return paneStyle.Render(strings.Join(parts, faintStyle.Render("  ·  ")))
}

func (m *Model) runningPane() string {
	if m.snap == nil || len(m.snap.Running) == 0 {
		return paneStyle.Render(faintStyle.Render("no agents running"))
	}
	lines := make([]string, 0, len(m.snap.Running))
	for _, r := range m.snap.Running {
		line := fmt.Sprintf("%s %s  %s", m.spinner.View(), r.TaskID, r.Agent)
		if r.Model != "" {
			line += faintStyle.Render(" (" + r.Model + ")")
		}
		line += faintStyle.Render(fmt.Sprintf("  pid %d  %s", r.PID,
			(time.Duration(r.RunningFor)*time.Second).Round(time.Second)))
		if r.Activity != "" {
			line += "\n   " + faintStyle.Render(r.Activity)
		}
		lines = append(lines, line)
	}
	return paneStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) eventsPane() string {
	if len(m.events) == 0 {
		return paneStyle.Render(faintStyle.Render("no events yet"))
	}
	lines := make([]string, 0, len(m.events))
	for _, e := range m.events {
		lines = append(lines, faintStyle.Render(e.at.Format("15:04:05"))+"  "+e.text)
	}
	return paneStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) helpLine() string {
	return faintStyle.Render("p pause · r resume · q quit")
}
