package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"xprobe/internal/core/types"
	"xprobe/internal/probe"
	"xprobe/internal/storage/models"
	pkgerrors "xprobe/pkg/errors"
)

type latencyModel struct {
	width  int
	height int

	interval time.Duration
	strategy string

	reading     probe.Reading
	lastErr     error
	lastProbeAt time.Time
	lastTook    time.Duration
	probing     bool

	status *types.Status
	stats  *types.Stats
}

func newLatencyModel(interval time.Duration, strategy string) latencyModel {
	return latencyModel{interval: interval, strategy: strategy}
}

func (lm *latencyModel) setSize(w, h int) {
	lm.width = w
	lm.height = h
}

// applyOutcome records a completed probe. The reading only moves on
// success; a failure is kept as an explicit error state.
func (lm *latencyModel) applyOutcome(o probe.Outcome) {
	lm.probing = false
	lm.reading = o.Reading
	lm.lastErr = o.Err
	lm.lastProbeAt = o.Started.Add(o.Duration)
	lm.lastTook = o.Duration
}

func (lm *latencyModel) updateStatus(msg statusResultMsg) {
	lm.status = msg.status
	lm.stats = msg.stats
}

func (lm *latencyModel) View(state types.TunnelState, conn *models.ActiveConnection, s spinner.Model) string {
	w := lm.width - 6
	if w < 30 {
		w = 30
	}

	sections := []string{lm.latencyCard(state, s)}
	if state.IsConnected() {
		sections = append(sections, lm.tunnelCard(conn))
	}

	var content string
	if len(sections) == 2 && lm.width > 80 {
		halfW := (w - 4) / 2
		left := cardStyle.Width(halfW).Render(sections[0])
		right := cardStyle.Width(halfW).Render(sections[1])
		content = lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
	} else {
		var rendered []string
		for _, section := range sections {
			rendered = append(rendered, cardStyle.Width(w).Render(section))
		}
		content = lipgloss.JoinVertical(lipgloss.Left, rendered...)
	}
	return forceHeight(content, lm.width, lm.height)
}

func (lm *latencyModel) latencyCard(state types.TunnelState, s spinner.Model) string {
	figure := severityStyle(lm.reading.Severity()).Render("Ping: " + lm.reading.String())

	rows := []string{
		cardTitleStyle.Render("Latency"),
		readingStyle.Render(figure),
		lm.row("Severity", severityStyle(lm.reading.Severity()).Render(lm.reading.Severity().String())),
		lm.row("Strategy", lm.strategy),
		lm.row("Interval", lm.interval.String()),
	}

	if !lm.lastProbeAt.IsZero() {
		rows = append(rows,
			lm.row("Last probe", lm.lastProbeAt.Format("15:04:05")),
			lm.row("Took", formatDuration(lm.lastTook)),
		)
	}

	switch {
	case lm.probing:
		rows = append(rows, lm.row("Probe", s.View()+" probing..."))
	case !state.IsConnected():
		rows = append(rows, "", dimStyle.Render("Idle: tunnel is "+string(state)+". Press 'c' to connect."))
	case lm.lastErr != nil:
		label := "Failed"
		style := errorStyle
		if pkgerrors.IsNegativeResult(lm.lastErr) {
			label = "No answer"
			style = warningStyle
		}
		rows = append(rows, lm.row(label, style.Render(truncate(lm.lastErr.Error(), 60))))
	case lm.reading.Valid:
		rows = append(rows, lm.row("Probe", successStyle.Render("OK")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (lm *latencyModel) tunnelCard(conn *models.ActiveConnection) string {
	rows := []string{cardTitleStyle.Render("Tunnel")}

	if conn != nil {
		rows = append(rows,
			lm.row("Name", conn.Name),
			lm.row("SOCKS5", fmt.Sprintf("127.0.0.1:%d", conn.SOCKSPort)),
			lm.row("Core", conn.CoreType),
		)
	}
	if lm.status != nil {
		if lm.status.PID > 0 {
			rows = append(rows, lm.row("PID", fmt.Sprintf("%d", lm.status.PID)))
		}
		if lm.status.Uptime > 0 {
			rows = append(rows, lm.row("Uptime", formatDuration(lm.status.Uptime)))
		}
	}
	if lm.stats != nil {
		rows = append(rows,
			lm.row("Upload", formatBytes(lm.stats.TotalUpload)),
			lm.row("Download", formatBytes(lm.stats.TotalDownload)),
			lm.row("Up Speed", formatBytes(lm.stats.UploadSpeed)+"/s"),
			lm.row("Down Speed", formatBytes(lm.stats.DownloadSpeed)+"/s"),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (lm *latencyModel) row(label, value string) string {
	return cardLabelStyle.Render(label+":") + " " + cardValueStyle.Render(value)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
