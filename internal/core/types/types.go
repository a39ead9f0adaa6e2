package types

import (
	"time"
)

// CoreConfig represents configuration for starting a core
type CoreConfig struct {
	// ConfigJSON is the effective xray configuration, already built.
	ConfigJSON []byte
	SOCKSPort  int
	APIPort    int
}

// TunnelState is the connection state of the tunnel. Only Connected
// permits probing.
type TunnelState string

const (
	TunnelDisconnected  TunnelState = "disconnected"
	TunnelConnecting    TunnelState = "connecting"
	TunnelConnected     TunnelState = "connected"
	TunnelDisconnecting TunnelState = "disconnecting"
)

// IsConnected reports whether s permits probing.
func (s TunnelState) IsConnected() bool {
	return s == TunnelConnected
}

// Status represents core runtime status
type Status struct {
	State     TunnelState
	Running   bool
	PID       int
	StartedAt time.Time
	Uptime    time.Duration
	CoreType  string
	SOCKSPort int
	APIPort   int
}

// Stats represents real-time statistics
type Stats struct {
	UploadSpeed   uint64 // bytes per second
	DownloadSpeed uint64 // bytes per second
	TotalUpload   uint64 // total bytes
	TotalDownload uint64 // total bytes
}

// CoreType represents the type of proxy core
type CoreType string

const (
	CoreTypeXray CoreType = "xray"
)
