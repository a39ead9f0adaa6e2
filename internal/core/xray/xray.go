package xray

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"xprobe/internal/core/types"
	"xprobe/internal/logger"
	"xprobe/internal/paths"
	pkgerrors "xprobe/pkg/errors"
)

// startupGrace is how long Start waits to catch xray exiting on a bad config.
var startupGrace = time.Second

// Xray runs the tunnel's xray-core process.
type Xray struct {
	binary         string
	configPath     string
	logPath        string
	pidPath        string
	cmd            *exec.Cmd
	startTime      time.Time
	running        int32 // atomic: 0=not running, 1=running
	mu             sync.Mutex
	logBuffer      *bytes.Buffer
	statsCollector *statsCollector
	apiPort        int
	socksPort      int
	log            *slog.Logger
}

// New creates a new Xray core instance
func New() (*Xray, error) {
	xrayPath, err := FindBinary()
	if err != nil {
		return nil, &pkgerrors.CoreError{CoreType: string(types.CoreTypeXray), Err: err}
	}

	cacheDir, err := paths.CacheDir()
	if err != nil {
		return nil, err
	}

	return &Xray{
		binary:     xrayPath,
		configPath: filepath.Join(cacheDir, "config.json"),
		logPath:    filepath.Join(cacheDir, "xray.log"),
		pidPath:    filepath.Join(cacheDir, "xray.pid"),
		logBuffer:  &bytes.Buffer{},
		log:        logger.WithComponent("core.xray"),
	}, nil
}

// Start writes the effective configuration and launches xray detached.
func (x *Xray) Start(ctx context.Context, config *types.CoreConfig) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if atomic.LoadInt32(&x.running) == 1 || x.alivePID() > 0 {
		return pkgerrors.ErrCoreAlreadyRunning
	}
	if len(config.ConfigJSON) == 0 {
		return pkgerrors.ErrEmptyConfiguration
	}

	if err := os.WriteFile(x.configPath, config.ConfigJSON, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	paths.ChownToRealUser(x.configPath)

	// exec.Command, not CommandContext: the tunnel outlives the CLI.
	cmd := exec.Command(x.binary, "run", "-c", x.configPath)
	cmd.Env = append(os.Environ(), "XRAY_LOCATION_ASSET="+filepath.Dir(x.binary))
	Detach(cmd)

	logFile, err := os.Create(x.logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	paths.ChownToRealUser(x.logPath)

	x.logBuffer.Reset()
	multiWriter := io.MultiWriter(logFile, x.logBuffer)
	cmd.Stdout = multiWriter
	cmd.Stderr = multiWriter

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start xray: %w", err)
	}

	x.cmd = cmd
	x.startTime = time.Now()
	x.apiPort = config.APIPort
	x.socksPort = config.SOCKSPort
	atomic.StoreInt32(&x.running, 1)

	pid := cmd.Process.Pid
	os.WriteFile(x.pidPath, []byte(strconv.Itoa(pid)), 0644)
	paths.ChownToRealUser(x.pidPath)

	x.statsCollector = newStatsCollector(x.binary, config.APIPort)

	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		atomic.StoreInt32(&x.running, 0)
		logFile.Close()
		os.Remove(x.pidPath)
		close(exited)
	}()

	select {
	case <-exited:
		logContent, _ := os.ReadFile(x.logPath)
		if len(logContent) > 0 {
			return fmt.Errorf("xray failed to start:\n%s", string(logContent))
		}
		return fmt.Errorf("xray failed to start, check logs at: %s", x.logPath)
	case <-ctx.Done():
		KillGroup(pid)
		return ctx.Err()
	case <-time.After(startupGrace):
	}

	x.log.Info("xray started", "pid", pid, "socks_port", config.SOCKSPort, "api_port", config.APIPort)
	return nil
}

// Stop stops xray, whether started by this process or another one.
func (x *Xray) Stop(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	pid := 0
	if x.cmd != nil && x.cmd.Process != nil && atomic.LoadInt32(&x.running) == 1 {
		pid = x.cmd.Process.Pid
	} else {
		pid = x.alivePID()
	}

	if pid == 0 {
		atomic.StoreInt32(&x.running, 0)
		os.Remove(x.pidPath)
		return pkgerrors.ErrCoreNotRunning
	}

	if err := Interrupt(pid); err != nil {
		KillGroup(pid)
	}

	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

wait:
	for ProcessAlive(pid) {
		select {
		case <-ctx.Done():
			KillGroup(pid)
			break wait
		case <-deadline.C:
			x.log.Warn("xray did not exit after interrupt, killing", "pid", pid)
			KillGroup(pid)
			break wait
		case <-tick.C:
		}
	}

	atomic.StoreInt32(&x.running, 0)
	os.Remove(x.pidPath)
	x.log.Info("xray stopped", "pid", pid)
	return nil
}

// IsRunning returns whether xray is running, checking the PID file for
// cores started by another xprobe process.
func (x *Xray) IsRunning() bool {
	if atomic.LoadInt32(&x.running) == 1 {
		return true
	}
	return x.alivePID() > 0
}

// alivePID returns the PID recorded in the PID file if that process is alive.
func (x *Xray) alivePID() int {
	pidBytes, err := os.ReadFile(x.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil || !ProcessAlive(pid) {
		return 0
	}
	return pid
}

// GetStatus returns the current status
func (x *Xray) GetStatus() (*types.Status, error) {
	status := &types.Status{
		Running:   x.IsRunning(),
		CoreType:  string(types.CoreTypeXray),
		SOCKSPort: x.socksPort,
		APIPort:   x.apiPort,
	}

	if atomic.LoadInt32(&x.running) == 1 && x.cmd != nil && x.cmd.Process != nil {
		status.PID = x.cmd.Process.Pid
		status.StartedAt = x.startTime
		status.Uptime = time.Since(x.startTime)
	} else if pid := x.alivePID(); pid > 0 {
		status.PID = pid
		if info, err := os.Stat(x.pidPath); err == nil {
			status.StartedAt = info.ModTime()
			status.Uptime = time.Since(status.StartedAt)
		}
	}

	return status, nil
}

// GetStats returns traffic statistics from the xray API.
func (x *Xray) GetStats() (*types.Stats, error) {
	if x.statsCollector == nil {
		return &types.Stats{}, nil
	}
	return x.statsCollector.GetStats()
}

// UseAPIPort points the stats collector at a core started by another process.
func (x *Xray) UseAPIPort(port int) {
	x.apiPort = port
	if x.statsCollector == nil {
		x.statsCollector = newStatsCollector(x.binary, port)
	}
}

// GetVersion returns the Xray version
func (x *Xray) GetVersion() (string, error) {
	output, err := exec.Command(x.binary, "version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get xray version: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	return string(output), nil
}

// GetLogs returns the log output
func (x *Xray) GetLogs() (io.Reader, error) {
	if _, err := os.Stat(x.logPath); err == nil {
		return os.Open(x.logPath)
	}
	return bytes.NewReader(x.logBuffer.Bytes()), nil
}

// FindBinary finds the xray binary in PATH or common install locations.
func FindBinary() (string, error) {
	locations := []string{
		"xray",
		"/usr/local/bin/xray",
		"/usr/bin/xray",
		"/opt/xray/xray",
	}

	if homeDir, err := paths.HomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(homeDir, ".local", "bin", "xray"),
			filepath.Join(homeDir, ".local", "share", "xprobe", "cores", "xray"),
		)
	}

	for _, loc := range locations {
		if path, err := exec.LookPath(loc); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (install from https://github.com/XTLS/Xray-core)", pkgerrors.ErrCoreNotFound)
}
