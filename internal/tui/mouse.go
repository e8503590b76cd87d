package tui

import "github.com/charmbracelet/bubbles/table"

// returns the column index at x, or -1 if not found.
func (m *MainModel) getColumnAtX(x int, cols []table.Column) int {
	currentX := 0
	for i, col := range cols {
		colWidth := col.Width + 2
		if x >= currentX && x < currentX+colWidth {
			return i
		}
		currentX += colWidth
	}
	return -1
}

func (m *MainModel) handleHeaderClick(x int) {
	if x < 0 {
		return
	}
	colIdx := m.getColumnAtX(x, m.table.Columns())
	// column 0 is the tracked marker
	if colIdx < 1 || colIdx > len(sortKeys) {
		return
	}

	newCol := sortKeys[colIdx-1]
	if m.sortCol == newCol {
		m.setSort(newCol, !m.sortDesc)
		return
	}
	m.setSort(newCol, false)
}
