package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wrap"

	"github.com/pranshuparmar/sockwatch/internal/output"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

type refreshedMsg struct {
	snap *snapshot.Snapshot
}

type refreshFailedMsg struct {
	err error
}

var sortKeys = []string{"local", "remote", "state", "pid", "txq", "rxq", "rto", "cwnd"}

func (m MainModel) refresh() tea.Cmd {
	store, spec := m.cfg.Store, m.cfg.Spec
	return func() tea.Msg {
		if _, err := store.Refresh(context.Background(), spec); err != nil {
			return refreshFailedMsg{err: err}
		}
		return refreshedMsg{snap: store.Current()}
	}
}

func (m *MainModel) loadSnapshot(snap *snapshot.Snapshot) {
	m.snap = snap
	m.rows = make([]row, 0, snap.Len())
	snap.Range(func(id model.Identity, rec model.Record) bool {
		r := row{id: id, rec: rec}
		if m.cfg.Tracked != nil {
			_, r.tracked = m.cfg.Tracked.Lookup(id)
		}
		m.rows = append(m.rows, r)
		return true
	})
	m.sortRows()
	m.filterRows()
}

func rtoOf(rec model.Record) uint32 {
	if rec.TCP == nil {
		return 0
	}
	return rec.TCP.RTO
}

func cwndOf(rec model.Record) uint32 {
	if rec.TCP == nil {
		return 0
	}
	return rec.TCP.SndCwnd
}

func compareAddrPort(a, b model.Identity, remote bool) int {
	if remote {
		if c := a.Remote().Compare(b.Remote()); c != 0 {
			return c
		}
		return a.Local().Compare(b.Local())
	}
	if c := a.Local().Compare(b.Local()); c != 0 {
		return c
	}
	return a.Remote().Compare(b.Remote())
}

func (m *MainModel) sortRows() {
	sort.SliceStable(m.rows, func(i, j int) bool {
		a, b := m.rows[i], m.rows[j]
		var less bool
		switch m.sortCol {
		case "remote":
			less = compareAddrPort(a.id, b.id, true) < 0
		case "state":
			less = a.rec.State < b.rec.State
		case "pid":
			less = a.rec.PID < b.rec.PID
		case "txq":
			less = a.rec.TxQueue < b.rec.TxQueue
		case "rxq":
			less = a.rec.RxQueue < b.rec.RxQueue
		case "rto":
			less = rtoOf(a.rec) < rtoOf(b.rec)
		case "cwnd":
			less = cwndOf(a.rec) < cwndOf(b.rec)
		default:
			less = compareAddrPort(a.id, b.id, false) < 0
		}
		if m.sortDesc {
			return !less
		}
		return less
	})
}

// cycleSort moves to the next sort column, flipping direction on wrap.
func (m *MainModel) cycleSort() {
	idx := 0
	for i, k := range sortKeys {
		if k == m.sortCol {
			idx = i
			break
		}
	}
	idx++
	if idx == len(sortKeys) {
		idx = 0
		m.sortDesc = !m.sortDesc
	}
	m.setSort(sortKeys[idx], m.sortDesc)
}

func (m *MainModel) setSort(col string, desc bool) {
	m.sortCol = col
	m.sortDesc = desc
	m.sortRows()
	m.filterRows()

	cols := m.table.Columns()
	newCols := m.getColumns()
	for i := range cols {
		if i < len(newCols) {
			newCols[i].Width = cols[i].Width
		}
	}
	m.table.SetColumns(newCols)
}

func endpoint(addr fmt.Stringer, port uint16) string {
	return addr.String() + ":" + output.PortName(port)
}

func (m *MainModel) filterRows() {
	filter := strings.ToLower(m.input.Value())
	var rows []table.Row

	m.filtered = nil
	for _, r := range m.rows {
		local := endpoint(r.id.LocalAddr, r.id.LocalPort)
		remote := endpoint(r.id.RemoteAddr, r.id.RemotePort)
		state := r.rec.State.String()

		match := filter == "" ||
			strings.Contains(strings.ToLower(local), filter) ||
			strings.Contains(strings.ToLower(remote), filter) ||
			strings.Contains(strings.ToLower(state), filter) ||
			strings.Contains(strconv.Itoa(r.rec.PID), filter)
		if !match {
			continue
		}

		m.filtered = append(m.filtered, r)
		mark := ""
		if r.tracked {
			mark = "●"
		}
		pid := "-"
		if r.rec.PID > 0 {
			pid = strconv.Itoa(r.rec.PID)
		}
		rto, cwnd := "-", "-"
		if r.rec.TCP != nil {
			rto = output.FormatMicros(r.rec.TCP.RTO)
			cwnd = strconv.FormatUint(uint64(r.rec.TCP.SndCwnd), 10)
		}
		rows = append(rows, table.Row{
			mark,
			local,
			remote,
			state,
			pid,
			strconv.FormatUint(r.rec.TxQueue, 10),
			strconv.FormatUint(r.rec.RxQueue, 10),
			rto,
			cwnd,
		})
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
	m.updateDetailViewport()
}

func (m *MainModel) getColumns() []table.Column {
	cols := []table.Column{
		{Title: "", Width: 1},
		{Title: "Local", Width: 26},
		{Title: "Remote", Width: 26},
		{Title: "State", Width: 12},
		{Title: "PID", Width: 8},
		{Title: "Tx-Q", Width: 8},
		{Title: "Rx-Q", Width: 8},
		{Title: "RTO", Width: 9},
		{Title: "Cwnd", Width: 6},
	}

	for i, key := range sortKeys {
		if m.sortCol != key {
			continue
		}
		if m.sortDesc {
			cols[i+1].Title += " ↓"
		} else {
			cols[i+1].Title += " ↑"
		}
	}
	return cols
}

func (m *MainModel) selected() (row, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.filtered) {
		return row{}, false
	}
	return m.filtered[idx], true
}

func (m *MainModel) updateDetailViewport() {
	r, ok := m.selected()
	if !ok {
		m.viewport.SetContent(dimStyle.Render("No socket selected."))
		return
	}

	var b strings.Builder
	field := func(label string, value interface{}) {
		fmt.Fprintf(&b, "%s %v\n", labelStyle.Render(label+":"), value)
	}
	field("Local", endpoint(r.id.LocalAddr, r.id.LocalPort))
	field("Remote", endpoint(r.id.RemoteAddr, r.id.RemotePort))
	field("State", r.rec.State)
	field("Family", r.rec.Family)
	field("PID", r.rec.PID)
	if r.rec.PID > 0 && m.cfg.Describe != nil {
		if p, err := m.cfg.Describe(r.rec.PID); err == nil {
			field("Command", p.Command)
			field("User", p.User)
			if p.Container != "" {
				field("Container", p.Container)
			}
			if p.Cmdline != "" {
				field("Cmdline", p.Cmdline)
			}
		}
	}
	field("UID", r.rec.UID)
	field("Inode", r.rec.Inode)
	field("Tx queue", r.rec.TxQueue)
	field("Rx queue", r.rec.RxQueue)
	if t := r.rec.TCP; t != nil {
		b.WriteString("\n")
		field("RTO", output.FormatMicros(t.RTO))
		field("ATO", output.FormatMicros(t.ATO))
		field("Retransmits", t.Retransmits)
		field("Cwnd", t.SndCwnd)
		field("SSThresh", t.SndSSThresh)
	}
	if r.tracked {
		fmt.Fprintf(&b, "\n%s\n", badgeStyle.Render("metered"))
	}

	content := b.String()
	if m.viewport.Width > 0 {
		content = wrap.String(content, m.viewport.Width)
	}
	m.viewport.SetContent(content)
}
