package tui

import (
	"fmt"
	"strings"
	"time"
)

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if !m.ready {
		return fmt.Sprintf("%s Initializing...\n", m.spinner.View())
	}

	var b strings.Builder

	role := "node"
	if m.status.IsGateway {
		role = "gateway"
	}
	title := titleStyle.Render(fmt.Sprintf("⏚ Sensor Mesh — %s %d", role, m.status.DeviceID))
	b.WriteString(title)
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")

	b.WriteString(m.renderRoute())
	b.WriteString("\n")

	b.WriteString(m.renderStats())
	b.WriteString("\n")

	neighborBox := boxStyle.Render(m.neighbors.View())
	b.WriteString(neighborBox)
	b.WriteString("\n")

	help := helpStyle.Render("q: quit • r: reset mesh state • ↑/↓: scroll neighbors")
	b.WriteString(help)

	return b.String()
}

func (m Model) renderStatusBar() string {
	source := timeSourceIndicator(m.status.TimeSource.String())

	mode := statLabelStyle.Render(" | Mode: ") + statValueStyle.Render(string(m.status.Mode))

	slot := statLabelStyle.Render(" | Slot: ") + statValueStyle.Render(
		fmt.Sprintf("[%d,%d] tx@%d", m.status.SlotStart, m.status.SlotEnd, m.status.TxSecond))

	uptime := time.Since(m.startTime).Round(time.Second)
	uptimeInfo := statLabelStyle.Render(" | Uptime: ") + statValueStyle.Render(uptime.String())

	return source + mode + slot + uptimeInfo
}

func (m Model) renderRoute() string {
	if m.status.IsGateway {
		return statLabelStyle.Render("Route: ") + okStyle.Render("gateway (distance 0)")
	}
	if !m.status.RouteValid {
		return statLabelStyle.Render("Route: ") + warnStyle.Render("none — flooding fallback")
	}
	return statLabelStyle.Render("Route: ") + statValueStyle.Render(
		fmt.Sprintf("%d hop(s) via node %d (%d dBm)",
			m.status.Distance, m.status.NextHop, m.status.BestRSSI))
}

func (m Model) renderStats() string {
	s := m.status.Stats
	r := m.status.RouterStats

	rx := statLabelStyle.Render("Rx: ") + statValueStyle.Render(fmt.Sprintf("%d", s.RxFrames))
	reports := statLabelStyle.Render(" | Reports: ") + statValueStyle.Render(fmt.Sprintf("%d", s.ValidReports))
	dups := statLabelStyle.Render(" | Dups: ") + statValueStyle.Render(fmt.Sprintf("%d", s.DuplicatesDropped))
	fwd := statLabelStyle.Render(" | Fwd: ") + statValueStyle.Render(
		fmt.Sprintf("%d (%d uni/%d flood)", s.PacketsForwarded, r.UnicastForwards, r.FloodingFallbacks))
	queue := statLabelStyle.Render(" | Queue: ") + statValueStyle.Render(fmt.Sprintf("%d", m.status.QueueDepth))

	failures := statLabelStyle.Render(" | TxFail: ")
	if s.TxFailures > 0 {
		failures += warnStyle.Render(fmt.Sprintf("%d", s.TxFailures))
	} else {
		failures += statValueStyle.Render("0")
	}

	return rx + reports + dups + fwd + queue + failures
}
