package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and updates the model
//
//nolint:gocritic // hugeParam: Model must be value receiver to implement tea.Model interface
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.service != nil {
				_ = m.service.Command("mesh reset")
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case tickMsg:
		m.lastUpdate = time.Time(msg)
		if m.service != nil {
			m.status = m.service.Status()
			m.refreshNeighbors()
		}
		cmds = append(cmds, tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.neighbors, cmd = m.neighbors.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) refreshNeighbors() {
	rows := make([]table.Row, 0, len(m.status.Neighbors))
	for _, n := range m.status.Neighbors {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", n.NodeID),
			fmt.Sprintf("%d dBm", n.RSSI),
			fmt.Sprintf("%d", n.RSSIMin),
			fmt.Sprintf("%d", n.RSSIMax),
			fmt.Sprintf("%d", n.PacketsReceived),
		})
	}
	m.neighbors.SetRows(rows)
}
