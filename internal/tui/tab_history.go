package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"xprobe/internal/probe"
	"xprobe/internal/storage/models"
)

type historyModel struct {
	table   table.Model
	results []*models.ProbeResult
	width   int
	height  int
}

func historyColumns(width int) []table.Column {
	errWidth := 30
	if width > 100 {
		errWidth = width - 70
	}
	return []table.Column{
		{Title: "Time", Width: 19},
		{Title: "Latency", Width: 10},
		{Title: "Severity", Width: 10},
		{Title: "Strategy", Width: 8},
		{Title: "Took", Width: 8},
		{Title: "Error", Width: errWidth},
	}
}

func newHistoryModel() historyModel {
	t := table.New(
		table.WithColumns(historyColumns(0)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(colorPurple)
	s.Selected = s.Selected.
		Foreground(colorFg).
		Background(lipgloss.AdaptiveColor{Light: "#E8E0F0", Dark: "#2A1A3E"}).
		Bold(true)
	t.SetStyles(s)

	return historyModel{table: t}
}

func (hm *historyModel) setSize(w, h int) {
	hm.width = w
	hm.height = h
	hm.table.SetColumns(historyColumns(w))
	th := h - 1
	if th < 1 {
		th = 1
	}
	hm.table.SetHeight(th)
}

func (hm *historyModel) setResults(results []*models.ProbeResult) {
	hm.results = results

	rows := make([]table.Row, len(results))
	for i, r := range results {
		latency := "-- ms"
		severity := probe.SeverityUnknown.String()
		if r.Success && r.LatencyMS != nil {
			reading := probe.Reading{MS: *r.LatencyMS, Valid: true}
			latency = reading.String()
			severity = reading.Severity().String()
		}
		rows[i] = table.Row{
			r.TestedAt.Local().Format("2006-01-02 15:04:05"),
			latency,
			severity,
			r.Strategy,
			fmt.Sprintf("%dms", r.DurationMS),
			truncate(r.ErrorMessage, 80),
		}
	}
	hm.table.SetRows(rows)
}

func (hm *historyModel) Update(msg tea.Msg, root *Model) tea.Cmd {
	var cmd tea.Cmd
	hm.table, cmd = hm.table.Update(msg)
	return cmd
}

func (hm *historyModel) View() string {
	if len(hm.results) == 0 {
		return forceHeight(dimStyle.Render("  No probes recorded yet."), hm.width, hm.height)
	}

	ok := 0
	for _, r := range hm.results {
		if r.Success {
			ok++
		}
	}
	summary := dimStyle.Render(fmt.Sprintf("  %d probes, %d ok, %d failed", len(hm.results), ok, len(hm.results)-ok))
	content := lipgloss.JoinVertical(lipgloss.Left, summary, hm.table.View())
	return forceHeight(content, hm.width, hm.height)
}
