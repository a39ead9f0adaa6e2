// Package latency implements the native probe engine: it starts a private
// xray instance for a staged configuration and measures a round trip
// through it.
package latency

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"xprobe/internal/core/xray"
	"xprobe/internal/logger"
)

// Wire types at the engine boundary. They mirror the probe package's
// documents without importing it.
type pingRequest struct {
	DatDir     *string `json:"datDir"`
	ConfigPath string  `json:"configPath"`
	Timeout    int     `json:"timeout"`
	URL        string  `json:"url"`
	Proxy      string  `json:"proxy"`
}

type pingResponse struct {
	Success bool   `json:"success"`
	Data    int    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Strategy Strategy
	// Launch starts a private xray per ping. When false the proxy named in
	// the request must already be served, e.g. by the running tunnel.
	Launch bool
	// ReadyTimeout bounds the wait for the private xray to listen.
	ReadyTimeout time.Duration
}

// Engine answers encoded ping requests with encoded ping responses.
type Engine struct {
	binary       string
	strategy     Strategy
	launch       bool
	readyTimeout time.Duration
	log          *slog.Logger
}

// NewEngine creates an Engine. A missing xray binary is not an error here;
// it surfaces through Available.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Strategy == nil {
		cfg.Strategy = &HTTPStrategy{}
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 3 * time.Second
	}
	e := &Engine{
		strategy:     cfg.Strategy,
		launch:       cfg.Launch,
		readyTimeout: cfg.ReadyTimeout,
		log:          logger.WithComponent("latency.engine"),
	}
	if cfg.Launch {
		e.binary, _ = xray.FindBinary()
	}
	return e
}

// Available reports whether the engine can run at all.
func (e *Engine) Available() error {
	if e.launch && e.binary == "" {
		_, err := xray.FindBinary()
		return err
	}
	return nil
}

// StrategyName returns the measurement strategy in use.
func (e *Engine) StrategyName() string {
	return e.strategy.Name()
}

// Ping runs one measurement. It always returns an encoded response; every
// failure is reported as success=false with an error message.
func (e *Engine) Ping(ctx context.Context, encoded string) string {
	ms, err := e.ping(ctx, encoded)
	if err != nil {
		e.log.Debug("ping failed", "error", err)
		return encodeResponse(pingResponse{Success: false, Error: err.Error()})
	}
	return encodeResponse(pingResponse{Success: true, Data: ms})
}

func (e *Engine) ping(ctx context.Context, encoded string) (int, error) {
	req, err := decodeRequest(encoded)
	if err != nil {
		return 0, err
	}

	proxyAddr, err := socksAddress(req.Proxy)
	if err != nil {
		return 0, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second)
		defer cancel()
	}

	if e.launch {
		stop, err := e.startXray(ctx, req)
		if err != nil {
			return 0, err
		}
		defer stop()

		if err := waitForPort(ctx, proxyAddr, e.readyTimeout); err != nil {
			return 0, err
		}
	}

	return e.strategy.Measure(ctx, proxyAddr, req.URL)
}

// startXray launches `xray run -c <configPath>` in its own process group and
// returns a function that kills the group.
func (e *Engine) startXray(ctx context.Context, req *pingRequest) (func(), error) {
	if e.binary == "" {
		return nil, errors.New("xray binary not found")
	}
	if _, err := os.Stat(req.ConfigPath); err != nil {
		return nil, fmt.Errorf("config not readable: %w", err)
	}

	assetDir := filepath.Dir(e.binary)
	if req.DatDir != nil && *req.DatDir != "" {
		assetDir = *req.DatDir
	}

	cmd := exec.Command(e.binary, "run", "-c", req.ConfigPath)
	cmd.Env = append(os.Environ(), "XRAY_LOCATION_ASSET="+assetDir)
	xray.Detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start probe xray: %w", err)
	}
	pid := cmd.Process.Pid
	e.log.Debug("probe xray started", "pid", pid, "config", req.ConfigPath)

	return func() {
		if err := xray.KillGroup(pid); err != nil {
			e.log.Warn("failed to kill probe xray", "pid", pid, "error", err)
		}
		cmd.Wait()
	}, nil
}

func decodeRequest(encoded string) (*pingRequest, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid request encoding: %w", err)
	}
	var req pingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.URL == "" {
		return nil, errors.New("invalid request: url is required")
	}
	return &req, nil
}

func encodeResponse(resp pingResponse) string {
	data, _ := json.Marshal(resp)
	return base64.StdEncoding.EncodeToString(data)
}

// socksAddress extracts host:port from a socks5:// URI. Empty means direct.
func socksAddress(uri string) (string, error) {
	if uri == "" {
		return "", nil
	}
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "socks5" && u.Scheme != "socks5h") || u.Port() == "" {
		return "", fmt.Errorf("invalid proxy %q", uri)
	}
	return u.Host, nil
}

// waitForPort polls addr until it accepts connections.
func waitForPort(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("xray failed to start listening on %s", addr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
