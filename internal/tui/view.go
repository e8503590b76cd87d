package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m MainModel) View() string {
	if m.quitting {
		return ""
	}

	outerStyle := baseStyle.
		Width(m.width-2).
		Height(m.height-2).
		Padding(0, 1)

	status := fmt.Sprintf("Query: %s", m.cfg.Spec)
	switch {
	case m.statusMsg != "":
		status = errorStyle.Render(m.statusMsg)
	case m.input.Focused():
		status = "Mode: Searching (Press Esc/Enter to stop)"
	case m.paused:
		status = "Paused (Press p to resume)"
	}

	availableWidth := m.width - 6
	listWidth := int(float64(availableWidth) * 0.7)
	if listWidth < 10 {
		listWidth = 10
	}

	detailTitle := "Socket"
	if !m.viewport.AtTop() && !m.viewport.AtBottom() {
		detailTitle += " ↕"
	} else if !m.viewport.AtTop() {
		detailTitle += " ↑"
	} else if !m.viewport.AtBottom() {
		detailTitle += " ↓"
	}

	detailContainerStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(lipgloss.Color("#585858")). // Dark Gray
		PaddingLeft(2).
		Height(m.table.Height())

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(listWidth).Render(m.table.View()),
		detailContainerStyle.Render(
			lipgloss.JoinVertical(lipgloss.Left,
				tableHeaderStyle.Width(m.viewport.Width).Render(detailTitle),
				lipgloss.NewStyle().PaddingLeft(1).Render(m.viewport.View()),
			),
		),
	)

	tracked := 0
	if m.cfg.Tracked != nil {
		tracked = m.cfg.Tracked.Len()
	}
	helpText := fmt.Sprintf("Sockets: %d/%d | Metered: %d | /: Search | s/S: Sort | r: Refresh | p: Pause | q: Quit",
		len(m.filtered), m.snap.Observed(), tracked)
	footerContent := helpText
	if m.cfg.Version != "" {
		gap := m.width - 6 - lipgloss.Width(helpText) - lipgloss.Width(m.cfg.Version)
		if gap > 0 {
			footerContent = helpText + strings.Repeat(" ", gap) + m.cfg.Version
		}
	}

	header := titleStyle.Render("sockwatch")
	if !m.snap.Taken().IsZero() {
		header = lipgloss.JoinHorizontal(lipgloss.Top,
			header,
			badgeStyle.Render(m.snap.Taken().Format("15:04:05")),
		)
	}

	return outerStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			lipgloss.NewStyle().Height(1).Render(""),
			lipgloss.NewStyle().MarginBottom(1).PaddingLeft(1).Render(status),
			lipgloss.NewStyle().MarginBottom(1).PaddingLeft(1).Render(m.input.View()),
			mainContent,
			lipgloss.NewStyle().Height(1).Render(""),
			footerStyle.Width(m.width-4).Render(footerContent),
		),
	)
}
