package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"xprobe/internal/core/types"
	"xprobe/internal/logger"
	pkgerrors "xprobe/pkg/errors"
)

// StateObserver is notified after every tunnel state transition.
type StateObserver func(types.TunnelState)

// Manager owns the tunnel core and tracks its connection state.
type Manager struct {
	core      ProxyCore
	coreType  types.CoreType
	state     types.TunnelState
	observers []StateObserver
	mu        sync.RWMutex
	log       *slog.Logger
}

// NewManager creates a manager around core.
func NewManager(core ProxyCore, coreType types.CoreType) *Manager {
	return &Manager{
		core:     core,
		coreType: coreType,
		state:    types.TunnelDisconnected,
		log:      logger.WithComponent("core.manager"),
	}
}

// OnStateChange registers fn for state transitions.
func (m *Manager) OnStateChange(fn StateObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Connect starts the core with config. The state passes through
// connecting and ends at connected, or back at disconnected on failure.
func (m *Manager) Connect(ctx context.Context, config *types.CoreConfig) error {
	m.mu.Lock()
	if m.state == types.TunnelConnecting || m.state == types.TunnelDisconnecting {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("tunnel is %s", state)
	}
	if m.core.IsRunning() {
		m.mu.Unlock()
		return pkgerrors.ErrCoreAlreadyRunning
	}
	m.mu.Unlock()

	m.setState(types.TunnelConnecting)
	if err := m.core.Start(ctx, config); err != nil {
		m.setState(types.TunnelDisconnected)
		return fmt.Errorf("failed to start core: %w", err)
	}
	m.setState(types.TunnelConnected)
	return nil
}

// Disconnect stops the core.
func (m *Manager) Disconnect(ctx context.Context) error {
	if !m.core.IsRunning() {
		m.setState(types.TunnelDisconnected)
		return pkgerrors.ErrCoreNotRunning
	}

	m.setState(types.TunnelDisconnecting)
	err := m.core.Stop(ctx)
	m.setState(types.TunnelDisconnected)
	if err != nil && !errors.Is(err, pkgerrors.ErrCoreNotRunning) {
		return fmt.Errorf("failed to stop core: %w", err)
	}
	return nil
}

// State returns the tunnel state. Outside transitions it is derived from
// core liveness, so a core started by another process reads as connected.
func (m *Manager) State() types.TunnelState {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	switch state {
	case types.TunnelConnecting, types.TunnelDisconnecting:
		return state
	}

	live := types.TunnelDisconnected
	if m.core.IsRunning() {
		live = types.TunnelConnected
	}
	if live != state {
		m.setState(live)
	}
	return live
}

func (m *Manager) setState(state types.TunnelState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = state
	observers := append([]StateObserver(nil), m.observers...)
	m.mu.Unlock()

	m.log.Debug("tunnel state changed", "from", prev, "to", state)
	for _, fn := range observers {
		fn(state)
	}
}

// IsRunning returns whether the core is currently running
func (m *Manager) IsRunning() bool {
	return m.core.IsRunning()
}

// GetStatus returns the current status of the core
func (m *Manager) GetStatus() (*types.Status, error) {
	status, err := m.core.GetStatus()
	if err != nil {
		return nil, err
	}

	status.CoreType = string(m.coreType)
	status.State = m.State()
	return status, nil
}

// GetStats returns real-time statistics
func (m *Manager) GetStats() (*types.Stats, error) {
	if !m.core.IsRunning() {
		return nil, pkgerrors.ErrCoreNotRunning
	}
	return m.core.GetStats()
}

// GetVersion returns the core version
func (m *Manager) GetVersion() (string, error) {
	return m.core.GetVersion()
}
