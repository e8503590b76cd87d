package tui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pranshuparmar/sockwatch/internal/meter"
	"github.com/pranshuparmar/sockwatch/internal/proc"
	"github.com/pranshuparmar/sockwatch/internal/query"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#585858")) // Dark Gray

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")). // White
			Background(lipgloss.Color("#7D56F4")). // Purple
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#5f5fd7")). // Purple/Blue
				Bold(true).
				Border(lipgloss.NormalBorder(), false, false, true, false).
				BorderForeground(lipgloss.Color("#585858")). // Dark Gray
				Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5f5fd7")). // Purple/Blue
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676")). // Dimmed Gray
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("#585858")). // Dark Gray
			Padding(0, 1).
			Width(100)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")). // White
			Background(lipgloss.Color("#22aa22")). // Green
			Padding(0, 1).
			Bold(true)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#af87ff")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff5f5f")). // Soft red
			Bold(true)
)

// Refresher is the part of the snapshot store the view drives.
type Refresher interface {
	Refresh(ctx context.Context, spec *query.Spec) (bool, error)
	Current() *snapshot.Snapshot
}

type Config struct {
	Store    Refresher
	Spec     *query.Spec
	Interval time.Duration
	// Tracked marks sockets that currently have meters. Optional.
	Tracked *meter.Manager[struct{}]
	// Describe looks up the owning process for the detail pane. Optional.
	Describe func(pid int) (proc.Process, error)
	Version  string
}

type row struct {
	id      model.Identity
	rec     model.Record
	tracked bool
}

type MainModel struct {
	cfg      Config
	table    table.Model
	input    textinput.Model
	viewport viewport.Model

	snap     *snapshot.Snapshot
	rows     []row
	filtered []row

	sortCol   string
	sortDesc  bool
	paused    bool
	statusMsg string
	width     int
	height    int
	quitting  bool
}

func InitialModel(cfg Config) MainModel {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	m := MainModel{
		cfg:     cfg,
		snap:    snapshot.Empty(),
		sortCol: "local",
	}

	t := table.New(
		table.WithColumns(m.getColumns()),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	s := table.DefaultStyles()
	s.Header = tableHeaderStyle.BorderForeground(lipgloss.Color("#585858"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ffffaf")). // Light Yellow
		Background(lipgloss.Color("#5f00d7")). // Purple
		Bold(false)
	t.SetStyles(s)

	ti := textinput.New()
	ti.Placeholder = "Search address, port, state, PID..."
	ti.CharLimit = 156
	ti.Width = 50
	ti.Prompt = "> "
	ti.PromptStyle = promptStyle
	ti.Blur()

	vp := viewport.New(0, 0)
	vp.YPosition = 0

	m.table = t
	m.input = ti
	m.viewport = vp
	return m
}

func Start(ctx context.Context, cfg Config) error {
	if os.Getenv("COLORTERM") == "" {
		os.Setenv("COLORTERM", "truecolor") //nolint:errcheck
	}

	p := tea.NewProgram(InitialModel(cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running tui: %w", err)
	}
	return nil
}

func (m MainModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.refresh(),
		waitTick(m.cfg.Interval),
		tea.EnableMouseCellMotion,
	)
}
