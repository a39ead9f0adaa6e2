package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"xprobe/internal/config/share"
	"xprobe/internal/core"
	"xprobe/internal/core/types"
	"xprobe/internal/core/xray"
	"xprobe/internal/latency"
	"xprobe/internal/logger"
	"xprobe/internal/paths"
	"xprobe/internal/probe"
	"xprobe/internal/storage"
	"xprobe/internal/storage/models"
	"xprobe/internal/storage/sqlite"
	pkgerrors "xprobe/pkg/errors"
)

// App represents the application context
type App struct {
	Config   *Config
	Storage  storage.Storage
	Builder  xray.Builder
	Tunnel   *core.Manager
	Engine   *latency.Engine
	Pipeline *probe.Pipeline
	Recorder *latency.Recorder
	Fetcher  *share.Fetcher

	logCloser io.Closer
	log       *slog.Logger
}

// Option adjusts the loaded configuration before anything is wired.
type Option func(*Config) error

// WithLogFile sends console logs to a file in the cache directory, for
// commands that own the terminal. An explicit log file is kept.
func WithLogFile() Option {
	return func(cfg *Config) error {
		switch strings.ToLower(cfg.Log.Output) {
		case "", "stderr", "stdout":
		default:
			return nil
		}
		cacheDir, err := paths.CacheDir()
		if err != nil {
			return err
		}
		cfg.Log.Output = filepath.Join(cacheDir, "xprobe.log")
		return nil
	}
}

// New loads configuration, initializes logging and storage, and wires the
// tunnel and the probe pipeline.
func New(v *viper.Viper, configPath string, opts ...Option) (*App, error) {
	cfg, err := LoadConfig(v, configPath)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logCloser, err := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755); err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{
		Config:    cfg,
		Storage:   store,
		Builder:   xray.Builder{LogLevel: cfg.Core.LogLevel},
		logCloser: logCloser,
		log:       logger.WithComponent("app"),
	}

	tunnelCore := newTunnelCore(a.log)
	if x, ok := tunnelCore.(*xray.Xray); ok {
		apiPort := cfg.Core.APIPort
		if conn, err := store.GetActiveConnection(context.Background()); err == nil && conn != nil {
			apiPort = conn.APIPort
		}
		x.UseAPIPort(apiPort)
	}
	a.Tunnel = core.NewManager(tunnelCore, types.CoreTypeXray)

	if err := a.wireProbe(); err != nil {
		a.Close()
		return nil, err
	}

	fetcherCfg := share.DefaultFetcherConfig()
	fetcherCfg.UserAgent = cfg.Subscription.UserAgent
	fetcherCfg.Timeout = cfg.Subscription.Timeout
	fetcherCfg.MaxRetries = cfg.Subscription.MaxRetries
	a.Fetcher = share.NewFetcher(fetcherCfg)

	return a, nil
}

// newTunnelCore returns the xray core, or a stand-in that reports the
// missing binary on every operation.
func newTunnelCore(log *slog.Logger) core.ProxyCore {
	x, err := xray.New()
	if err != nil {
		log.Debug("tunnel core unavailable", "error", err)
		return missingCore{err: err}
	}
	return x
}

func (a *App) wireProbe() error {
	cfg := a.Config.Probe

	strategy, err := latency.NewStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	a.Engine = latency.NewEngine(latency.EngineConfig{
		Strategy: strategy,
		Launch:   cfg.Launch,
	})

	stager, err := probe.NewFileStager("")
	if err != nil {
		return fmt.Errorf("failed to prepare staging directory: %w", err)
	}

	builder := probe.NewRequestBuilder(a.Builder, stager, probe.RequestOptions{
		InboundPort: cfg.InboundPort,
		TrafficPort: cfg.TrafficPort,
		DatDir:      cfg.DatDir,
		Timeout:     cfg.Timeout,
		URL:         cfg.URL,
	})

	a.Pipeline = probe.NewPipeline(
		storage.NewRawConfigSource(a.Storage),
		builder,
		probe.NewInvoker(a.Engine),
		stager,
		a.ProbePort(),
	)

	keep := 1000
	if value, err := a.Storage.GetSetting(context.Background(), "probe_history_keep"); err == nil {
		if n, convErr := strconv.Atoi(value); convErr == nil {
			keep = n
		}
	}
	a.Recorder = latency.NewRecorder(a.Storage, latency.RecorderConfig{
		Strategy: a.Engine.StrategyName(),
		Keep:     keep,
	})
	return nil
}

// ProbePort is the SOCKS port probes go through: the private xray's inbound
// when the engine launches one, the tunnel's otherwise.
func (a *App) ProbePort() int {
	if a.Config.Probe.Launch {
		return a.Config.Probe.SocksPort
	}
	return a.Config.Core.SocksPort
}

// NewScheduler creates a probe scheduler bound to the tunnel, recording
// every outcome to history.
func (a *App) NewScheduler() (*probe.Scheduler, error) {
	scheduler, err := probe.NewScheduler(a.Pipeline, a.Tunnel, a.Config.Probe.Interval)
	if err != nil {
		return nil, err
	}
	scheduler.Subscribe(a.Recorder.Observer())
	a.Tunnel.OnStateChange(scheduler.HandleTunnelState)
	return scheduler, nil
}

// ProbeOnce runs one probe outside the scheduler and records it. Unless
// force is set the tunnel must be connected. The result is returned along
// with the probe error, if any.
func (a *App) ProbeOnce(ctx context.Context, force bool) (*models.ProbeResult, error) {
	if !force && !a.Tunnel.State().IsConnected() {
		return nil, pkgerrors.ErrTunnelNotConnected
	}

	started := time.Now()
	ms, err := a.Pipeline.Run(ctx)
	outcome := probe.Outcome{Err: err, Started: started, Duration: time.Since(started)}
	if err == nil {
		outcome.Reading = probe.Reading{MS: ms, Valid: true, At: time.Now()}
	}

	result, recErr := a.Recorder.Record(ctx, outcome)
	if recErr != nil {
		a.log.Warn("failed to record probe result", "error", recErr)
		result = a.Recorder.Result(outcome)
	}
	return result, err
}

// RawConfig returns the stored raw configuration.
func (a *App) RawConfig(ctx context.Context) (string, error) {
	raw, err := storage.NewRawConfigSource(a.Storage).RawConfiguration(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", pkgerrors.ErrEmptyConfiguration
	}
	return raw, nil
}

// SetRawConfig stores raw as the configuration, after checking that it
// builds, together with a note on where it came from.
func (a *App) SetRawConfig(ctx context.Context, raw, source string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return pkgerrors.ErrEmptyConfiguration
	}
	if _, err := a.Builder.BuildConfigurationData(a.Config.Core.SocksPort, a.Config.Core.APIPort, raw); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrConfigurationBuild, err)
	}

	tx, err := a.Storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.SetSetting(ctx, storage.SettingRawConfig, raw); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.SetSetting(ctx, storage.SettingRawConfigSource, source); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ClearRawConfig removes the stored configuration.
func (a *App) ClearRawConfig(ctx context.Context) error {
	if err := a.Storage.DeleteSetting(ctx, storage.SettingRawConfig); err != nil {
		return err
	}
	return a.Storage.DeleteSetting(ctx, storage.SettingRawConfigSource)
}

// Connect builds the tunnel configuration from the stored raw config,
// starts the core and records the active connection.
func (a *App) Connect(ctx context.Context) (*models.ActiveConnection, error) {
	raw, err := a.RawConfig(ctx)
	if err != nil {
		return nil, err
	}

	data, err := a.Builder.BuildConfigurationData(a.Config.Core.SocksPort, a.Config.Core.APIPort, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrConfigurationBuild, err)
	}

	err = a.Tunnel.Connect(ctx, &types.CoreConfig{
		ConfigJSON: data,
		SOCKSPort:  a.Config.Core.SocksPort,
		APIPort:    a.Config.Core.APIPort,
	})
	if err != nil {
		return nil, err
	}

	conn := &models.ActiveConnection{
		CoreType:  string(types.CoreTypeXray),
		Name:      connectionName(raw),
		SOCKSPort: a.Config.Core.SocksPort,
		APIPort:   a.Config.Core.APIPort,
	}
	if err := a.Storage.SetActiveConnection(ctx, conn); err != nil {
		a.log.Warn("failed to record active connection", "error", err)
	}
	return conn, nil
}

// Disconnect stops the core and clears the active connection. A core that
// is already down is not an error when a stale record is cleaned up.
func (a *App) Disconnect(ctx context.Context) error {
	err := a.Tunnel.Disconnect(ctx)
	if clearErr := a.Storage.ClearActiveConnection(ctx); clearErr != nil {
		a.log.Warn("failed to clear active connection", "error", clearErr)
	}
	if errors.Is(err, pkgerrors.ErrCoreNotRunning) {
		return pkgerrors.ErrNoActiveConnection
	}
	return err
}

// ImportSubscription fetches url and stores the first usable link from it.
func (a *App) ImportSubscription(ctx context.Context, url string) (*share.Link, error) {
	body, err := a.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	uris, err := share.DecodeSubscription(body)
	if err != nil {
		return nil, &pkgerrors.SubscriptionError{URL: url, Err: err}
	}

	for _, uri := range uris {
		link, err := share.Parse(uri)
		if err != nil {
			a.log.Debug("skipping subscription entry", "error", err)
			continue
		}
		if err := a.SetRawConfig(ctx, uri, url); err != nil {
			a.log.Debug("skipping subscription entry", "name", link.Name, "error", err)
			continue
		}
		return link, nil
	}
	return nil, &pkgerrors.SubscriptionError{URL: url, Err: pkgerrors.ErrSubscriptionEmpty}
}

func connectionName(raw string) string {
	if strings.HasPrefix(raw, "{") {
		return "custom"
	}
	if link, err := share.Parse(raw); err == nil && link.Name != "" {
		return link.Name
	}
	return "subscription"
}

// Close closes the application and releases resources
func (a *App) Close() error {
	var err error
	if a.Storage != nil {
		err = a.Storage.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return err
}

// missingCore stands in for xray when its binary cannot be found. The
// tunnel reads as disconnected and every action reports why.
type missingCore struct {
	err error
}

func (m missingCore) Start(context.Context, *types.CoreConfig) error { return m.err }
func (m missingCore) Stop(context.Context) error                     { return pkgerrors.ErrCoreNotRunning }
func (m missingCore) IsRunning() bool                                { return false }
func (m missingCore) GetStatus() (*types.Status, error) {
	return &types.Status{State: types.TunnelDisconnected}, nil
}
func (m missingCore) GetVersion() (string, error)    { return "", m.err }
func (m missingCore) GetStats() (*types.Stats, error) { return nil, pkgerrors.ErrCoreNotRunning }
func (m missingCore) GetLogs() (io.Reader, error)     { return nil, m.err }
