package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type tickMsg time.Time

func waitTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tickMsg:
		if !m.paused && !m.quitting {
			cmd = m.refresh()
		}
		return m, tea.Batch(cmd, waitTick(m.cfg.Interval))

	case refreshedMsg:
		m.statusMsg = ""
		m.loadSnapshot(msg.snap)
		return m, nil

	case refreshFailedMsg:
		m.statusMsg = "Refresh failed: " + msg.err.Error()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		// Header row of the table.
		if msg.Y == 7 {
			m.handleHeaderClick(msg.X - 2)
		}
		return m, nil

	case tea.KeyMsg:
		if m.input.Focused() {
			switch msg.String() {
			case "esc", "enter":
				m.input.Blur()
				return m, nil
			}
			m.input, cmd = m.input.Update(msg)
			m.filterRows()
			return m, cmd
		}

		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.statusMsg = ""
			return m, m.refresh()
		case "s":
			m.cycleSort()
			return m, nil
		case "S":
			m.setSort(m.sortCol, !m.sortDesc)
			return m, nil
		case "p", " ":
			m.paused = !m.paused
			return m, nil
		case "/":
			m.input.Focus()
			return m, nil
		}
	}

	prev := m.table.Cursor()
	m.table, cmd = m.table.Update(msg)
	if m.table.Cursor() != prev {
		m.updateDetailViewport()
	}
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vpCmd)
}

func (m *MainModel) resize() {
	availableWidth := m.width - 6
	if availableWidth < 0 {
		availableWidth = 0
	}
	listWidth := int(float64(availableWidth) * 0.7)
	if listWidth < 10 {
		listWidth = 10
	}

	// title, spacer, status, input, footer and borders
	tableHeight := m.height - 12
	if tableHeight < 3 {
		tableHeight = 3
	}
	m.table.SetHeight(tableHeight)
	m.table.SetWidth(listWidth)

	m.viewport.Width = availableWidth - listWidth - 3
	if m.viewport.Width < 0 {
		m.viewport.Width = 0
	}
	m.viewport.Height = tableHeight - 1
	m.updateDetailViewport()
}
