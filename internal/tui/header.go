package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"xprobe/internal/core/types"
)

var tabNames = []string{"Latency", "History", "Config"}

// tunnelPill renders the tunnel state badge shown on the right of the
// header. A connected tunnel shows the connection name when known.
func tunnelPill(state types.TunnelState, connName string) string {
	switch state {
	case types.TunnelConnected:
		if connName == "" {
			connName = "CONNECTED"
		}
		return connectedPillStyle.Render(" " + connName + " ")
	case types.TunnelConnecting, types.TunnelDisconnecting:
		return connectingPillStyle.Render(" " + strings.ToUpper(string(state)) + " ")
	default:
		return disconnectedPillStyle.Render(" DISCONNECTED ")
	}
}

func renderHeader(activeTab int, state types.TunnelState, connName string, width int) string {
	logo := logoStyle.Render("XPROBE")
	pill := tunnelPill(state, connName)

	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		style := inactiveTabStyle
		if i == activeTab {
			style = activeTabStyle
		}
		tabs[i] = style.Render(name)
	}

	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(pill), 1)
	top := logo + strings.Repeat(" ", gap) + pill

	return lipgloss.JoinVertical(lipgloss.Left,
		top,
		lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...),
		rule(width),
	)
}

func renderFooter(helpText string, width int) string {
	return lipgloss.JoinVertical(lipgloss.Left, rule(width), helpBarStyle.Render(helpText))
}

func rule(width int) string {
	return ruleStyle.Render(strings.Repeat("─", max(width, 0)))
}

func renderHelpBar(showFull bool) string {
	if !showFull {
		return renderBindings(keys.ShortHelp(), " | ")
	}
	groups := keys.FullHelp()
	lines := make([]string, 0, len(groups))
	for _, group := range groups {
		lines = append(lines, renderBindings(group, "  "))
	}
	return strings.Join(lines, "\n")
}

func renderBindings(bindings []key.Binding, sep string) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, helpKeyStyle.Render(h.Key)+" "+helpDescStyle.Render(h.Desc))
	}
	return strings.Join(parts, helpSepStyle.Render(sep))
}
