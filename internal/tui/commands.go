package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"xprobe/internal/storage"
	pkgerrors "xprobe/pkg/errors"
)

// historyLimit is how many probe results the history tab shows.
const historyLimit = 200

// loadActiveConnection loads the recorded active connection.
func loadActiveConnection(store storage.Storage) tea.Cmd {
	return func() tea.Msg {
		conn, err := store.GetActiveConnection(context.Background())
		return activeConnLoadedMsg{conn: conn, err: err}
	}
}

// loadHistory fetches the most recent probe results.
func loadHistory(store storage.Storage) tea.Cmd {
	return func() tea.Msg {
		results, err := store.GetProbeHistory(context.Background(), historyLimit)
		return historyLoadedMsg{results: results, err: err}
	}
}

// loadRawConfig fetches the stored raw configuration and its source.
func loadRawConfig(store storage.Storage) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		raw, err := storage.NewRawConfigSource(store).RawConfiguration(ctx)
		if err != nil {
			return rawConfigLoadedMsg{err: err}
		}
		source, _ := store.GetSetting(ctx, storage.SettingRawConfigSource)
		return rawConfigLoadedMsg{raw: raw, source: source}
	}
}

// saveRawConfig validates and stores raw.
func saveRawConfig(backend Backend, raw string) tea.Cmd {
	return func() tea.Msg {
		return rawConfigSavedMsg{err: backend.SetRawConfig(context.Background(), raw, "tui")}
	}
}

// connect starts the tunnel from the stored configuration.
func connect(backend Backend) tea.Cmd {
	return func() tea.Msg {
		conn, err := backend.Connect(context.Background())
		return connectResultMsg{conn: conn, err: err}
	}
}

// disconnect stops the tunnel.
func disconnect(backend Backend) tea.Cmd {
	return func() tea.Msg {
		err := backend.Disconnect(context.Background())
		if errors.Is(err, pkgerrors.ErrNoActiveConnection) {
			err = nil
		}
		return disconnectResultMsg{err: err}
	}
}

// requestProbe fires an out-of-schedule probe.
func requestProbe(prober Prober) tea.Cmd {
	return func() tea.Msg {
		return probeRequestedMsg{dispatched: prober.ProbeNow()}
	}
}

// pollStatus fetches tunnel state, core status and traffic stats.
func pollStatus(tunnel Tunnel) tea.Cmd {
	return func() tea.Msg {
		state := tunnel.State()
		if !state.IsConnected() {
			return statusResultMsg{state: state}
		}
		status, _ := tunnel.GetStatus()
		stats, _ := tunnel.GetStats()
		return statusResultMsg{state: state, status: status, stats: stats}
	}
}

// statusTick returns a tea.Cmd that fires after 2 seconds.
func statusTick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

// clearNotification returns a command that fires after a delay.
func clearNotification(d time.Duration, version int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearNotificationMsg{version: version}
	})
}
