// Package tui provides the live status terminal interface.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ridgelink/sensormesh/internal/node"
)

// Model represents the TUI state
type Model struct {
	// Service reference
	service *node.Service

	// UI state
	width    int
	height   int
	ready    bool
	quitting bool

	// Components
	spinner   spinner.Model
	neighbors table.Model

	// Data
	status     node.Status
	startTime  time.Time
	lastUpdate time.Time
}

// New creates a new TUI model
func New(service *node.Service) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	columns := []table.Column{
		{Title: "Node", Width: 6},
		{Title: "RSSI", Width: 8},
		{Title: "Min", Width: 6},
		{Title: "Max", Width: 6},
		{Title: "Pkts", Width: 6},
	}
	nt := table.New(
		table.WithColumns(columns),
		table.WithHeight(6),
		table.WithFocused(true),
	)
	st := table.DefaultStyles()
	st.Header = tableHeaderStyle
	st.Selected = tableSelectedStyle
	nt.SetStyles(st)

	return Model{
		service:   service,
		spinner:   s,
		neighbors: nt,
		startTime: time.Now(),
	}
}

// Init initializes the model
//
//nolint:gocritic // hugeParam: Model must be value receiver to implement tea.Model interface
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
	)
}

// tickMsg is sent periodically to refresh the status snapshot
type tickMsg time.Time

// tickCmd returns a command that sends a tick every second
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
