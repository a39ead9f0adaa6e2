// Package tui is the interactive latency view: a live latency card driven
// by the probe scheduler, the recorded probe history and the stored raw
// configuration.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"xprobe/internal/core/types"
	"xprobe/internal/probe"
	"xprobe/internal/storage"
	"xprobe/internal/storage/models"
)

// Tab indices.
const (
	tabLatency = 0
	tabHistory = 1
	tabConfig  = 2
	tabCount   = 3
)

// Backend performs the tunnel and configuration actions.
type Backend interface {
	Connect(ctx context.Context) (*models.ActiveConnection, error)
	Disconnect(ctx context.Context) error
	SetRawConfig(ctx context.Context, raw, source string) error
}

// Tunnel reports tunnel state and core statistics.
type Tunnel interface {
	State() types.TunnelState
	GetStatus() (*types.Status, error)
	GetStats() (*types.Stats, error)
}

// Prober is the running probe scheduler.
type Prober interface {
	ProbeNow() bool
	Reading() probe.Reading
	LastError() error
}

// Model is the root BubbleTea model.
type Model struct {
	// Dependencies.
	store   storage.Storage
	backend Backend
	tunnel  Tunnel
	prober  Prober

	// Dimensions.
	width  int
	height int

	// Navigation.
	activeTab int
	showHelp  bool

	// Connection state.
	state      types.TunnelState
	busy       bool
	activeConn *models.ActiveConnection

	// Tab models.
	latencyTab latencyModel
	historyTab historyModel
	configTab  configModel

	// Notification.
	notification    string
	notificationErr bool
	notifVersion    int

	// Spinner for async operations.
	spinner spinner.Model
}

// Deps holds all dependencies injected into the TUI.
type Deps struct {
	Storage  storage.Storage
	Backend  Backend
	Tunnel   Tunnel
	Prober   Prober
	Interval time.Duration
	Strategy string
}

// NewModel creates a new root Model.
func NewModel(deps Deps) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := &Model{
		store:      deps.Storage,
		backend:    deps.Backend,
		tunnel:     deps.Tunnel,
		prober:     deps.Prober,
		activeTab:  tabLatency,
		state:      types.TunnelDisconnected,
		spinner:    s,
		latencyTab: newLatencyModel(deps.Interval, deps.Strategy),
		historyTab: newHistoryModel(),
		configTab:  newConfigModel(),
	}
	if deps.Prober != nil {
		m.latencyTab.reading = deps.Prober.Reading()
		m.latencyTab.lastErr = deps.Prober.LastError()
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		pollStatus(m.tunnel),
		loadActiveConnection(m.store),
		loadHistory(m.store),
		loadRawConfig(m.store),
		statusTick(),
		m.spinner.Tick,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	prevNotifVersion := m.notifVersion

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		ch := m.contentHeight()
		m.latencyTab.setSize(msg.Width, ch)
		m.historyTab.setSize(msg.Width, ch)
		m.configTab.setSize(msg.Width, ch)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}

	// Probe.
	case probeOutcomeMsg:
		m.latencyTab.applyOutcome(msg.outcome)
		cmds = append(cmds, loadHistory(m.store))
	case probeRequestedMsg:
		if msg.dispatched {
			m.latencyTab.probing = true
		} else if !m.state.IsConnected() {
			m.setNotification("Tunnel is not connected", true)
		} else {
			m.setNotification("A probe is already in flight", false)
		}

	// Tunnel.
	case tunnelStateMsg:
		m.state = msg.state
		if !msg.state.IsConnected() {
			m.latencyTab.probing = false
		}
	case activeConnLoadedMsg:
		if msg.err == nil {
			m.activeConn = msg.conn
		}
	case connectResultMsg:
		m.busy = false
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Connect failed: %v", msg.err), true)
		} else {
			m.activeConn = msg.conn
			m.setNotification(fmt.Sprintf("Connected to %s", msg.conn.Name), false)
		}
		cmds = append(cmds, pollStatus(m.tunnel))
	case disconnectResultMsg:
		m.busy = false
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Disconnect failed: %v", msg.err), true)
		} else {
			m.activeConn = nil
			m.setNotification("Disconnected", false)
		}
		cmds = append(cmds, pollStatus(m.tunnel))

	// Status polling.
	case statusTickMsg:
		cmds = append(cmds, pollStatus(m.tunnel), statusTick())
	case statusResultMsg:
		wasConnected := m.state.IsConnected()
		m.state = msg.state
		m.latencyTab.updateStatus(msg)
		if wasConnected && !msg.state.IsConnected() && !m.busy {
			m.latencyTab.probing = false
			m.setNotification("Connection lost - core process stopped", true)
		}

	// Data loading.
	case historyLoadedMsg:
		if msg.err == nil {
			m.historyTab.setResults(msg.results)
		}
	case rawConfigLoadedMsg:
		if msg.err == nil {
			m.configTab.setRaw(msg.raw, msg.source)
		}
	case rawConfigSavedMsg:
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Save failed: %v", msg.err), true)
		} else {
			m.setNotification("Configuration saved", false)
			cmds = append(cmds, loadRawConfig(m.store))
		}

	// Notification.
	case clearNotificationMsg:
		if msg.version == m.notifVersion {
			m.notification = ""
			m.notificationErr = false
		}
	}

	// Spinner.
	if m.busy || m.latencyTab.probing {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Schedule notification auto-clear when a new notification was set.
	if m.notifVersion > prevNotifVersion && m.notification != "" {
		cmds = append(cmds, clearNotification(4*time.Second, m.notifVersion))
	}

	// Delegate to active tab.
	switch m.activeTab {
	case tabHistory:
		cmds = append(cmds, m.historyTab.Update(msg, m))
	case tabConfig:
		cmds = append(cmds, m.configTab.Update(msg, m))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	connName := ""
	if m.activeConn != nil {
		connName = m.activeConn.Name
	}
	state := m.state
	if m.busy && state == types.TunnelDisconnected {
		state = types.TunnelConnecting
	}
	header := renderHeader(m.activeTab, state, connName, m.width)

	var content string
	switch m.activeTab {
	case tabLatency:
		content = m.latencyTab.View(m.state, m.activeConn, m.spinner)
	case tabHistory:
		content = m.historyTab.View()
	case tabConfig:
		content = m.configTab.View()
	}

	var notif string
	if m.notification != "" {
		if m.notificationErr {
			notif = notifErrorStyle.Render("! " + m.notification)
		} else {
			notif = notifSuccessStyle.Render("* " + m.notification)
		}
	}

	helpText := renderHelpBar(m.showHelp)
	footer := renderFooter(helpText, m.width)

	parts := []string{header}
	if notif != "" {
		parts = append(parts, notif)
	}
	parts = append(parts, content, footer)
	output := lipgloss.JoinVertical(lipgloss.Left, parts...)

	// Force exactly m.height lines to prevent BubbleTea rendering drift.
	return forceHeight(output, m.width, m.height)
}

// forceHeight ensures the string has exactly `height` lines, each padded to `width`.
// This prevents BubbleTea from leaving ghost lines when switching tabs.
func forceHeight(s string, width, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	blank := strings.Repeat(" ", max(width, 0))
	for len(lines) < height {
		lines = append(lines, blank)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) contentHeight() int {
	overhead := 5
	if m.showHelp {
		overhead += 3
	}
	h := m.height - overhead
	if h < 1 {
		h = 1
	}
	return h
}

// handleGlobalKey handles keys that work on every tab. handled is false
// when the key should reach the active tab.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	// Don't intercept while the config editor has focus.
	if m.activeTab == tabConfig && m.configTab.editing {
		return nil, false
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit, true

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		m.resize()
		return nil, true

	case key.Matches(msg, keys.TabNext):
		m.activeTab = (m.activeTab + 1) % tabCount
		return nil, true

	case key.Matches(msg, keys.TabPrev):
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return nil, true

	case key.Matches(msg, keys.Probe):
		if m.prober == nil {
			return nil, true
		}
		return requestProbe(m.prober), true

	case key.Matches(msg, keys.Connect):
		if m.busy {
			return nil, true
		}
		if m.state.IsConnected() {
			m.setNotification("Already connected", false)
			return m.notificationCmd(), true
		}
		m.busy = true
		return tea.Batch(connect(m.backend), m.spinner.Tick), true

	case key.Matches(msg, keys.Disconnect):
		if m.busy || !m.state.IsConnected() {
			return nil, true
		}
		m.busy = true
		return tea.Batch(disconnect(m.backend), m.spinner.Tick), true

	case key.Matches(msg, keys.Refresh):
		return tea.Batch(
			pollStatus(m.tunnel),
			loadActiveConnection(m.store),
			loadHistory(m.store),
			loadRawConfig(m.store),
		), true
	}

	return nil, false
}

func (m *Model) resize() {
	if m.width == 0 {
		return
	}
	ch := m.contentHeight()
	m.latencyTab.setSize(m.width, ch)
	m.historyTab.setSize(m.width, ch)
	m.configTab.setSize(m.width, ch)
}

func (m *Model) setNotification(text string, isErr bool) {
	m.notification = text
	m.notificationErr = isErr
	m.notifVersion++
}

func (m *Model) notificationCmd() tea.Cmd {
	return clearNotification(4*time.Second, m.notifVersion)
}

// NewProgram creates a bubbletea program with alt screen.
func NewProgram(deps Deps) *tea.Program {
	m := NewModel(deps)
	return tea.NewProgram(m, tea.WithAltScreen())
}

// Observer forwards probe outcomes from the scheduler's goroutine onto the
// program's event loop.
func Observer(p *tea.Program) probe.Observer {
	return func(o probe.Outcome) {
		p.Send(probeOutcomeMsg{outcome: o})
	}
}

// StateObserver forwards tunnel state changes onto the event loop.
func StateObserver(p *tea.Program) func(types.TunnelState) {
	return func(state types.TunnelState) {
		p.Send(tunnelStateMsg{state: state})
	}
}
