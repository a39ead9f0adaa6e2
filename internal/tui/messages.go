package tui

import (
	"xprobe/internal/core/types"
	"xprobe/internal/probe"
	"xprobe/internal/storage/models"
)

// Probe messages.

// probeOutcomeMsg carries a scheduler outcome onto the event loop.
type probeOutcomeMsg struct {
	outcome probe.Outcome
}

type probeRequestedMsg struct {
	dispatched bool
}

// Tunnel messages.

type tunnelStateMsg struct {
	state types.TunnelState
}

type activeConnLoadedMsg struct {
	conn *models.ActiveConnection
	err  error
}

type connectResultMsg struct {
	conn *models.ActiveConnection
	err  error
}

type disconnectResultMsg struct {
	err error
}

// Status polling messages.

type statusTickMsg struct{}

type statusResultMsg struct {
	state  types.TunnelState
	status *types.Status
	stats  *types.Stats
}

// Data loading messages.

type historyLoadedMsg struct {
	results []*models.ProbeResult
	err     error
}

type rawConfigLoadedMsg struct {
	raw    string
	source string
	err    error
}

type rawConfigSavedMsg struct {
	err error
}

// Notification message.

type clearNotificationMsg struct {
	version int
}
