package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xprobe/internal/core/xray"
	"xprobe/internal/storage"
	pkgerrors "xprobe/pkg/errors"
)

const trojanLink = "trojan://secret@t.example.org:8443?sni=t.example.org#edge"

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SUDO_USER", "")
	t.Setenv("SUDO_UID", "")
	t.Setenv("PATH", t.TempDir())
	return home
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	isolate(t)
	v := viper.New()
	v.Set("storage.db_path", filepath.Join(t.TempDir(), "xprobe.db"))
	a, err := New(v, "")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestLoadConfigDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Probe.Interval)
	assert.Equal(t, 30, cfg.Probe.Timeout)
	assert.Equal(t, "https://www.google.com", cfg.Probe.URL)
	assert.Equal(t, 10808, cfg.Probe.InboundPort)
	assert.Equal(t, 49227, cfg.Probe.TrafficPort)
	assert.True(t, cfg.Probe.Launch)
	assert.Equal(t, 1080, cfg.Core.SocksPort)
	assert.Equal(t, 10085, cfg.Core.APIPort)
	assert.Equal(t, 3, cfg.Subscription.MaxRetries)
	assert.Equal(t, filepath.Join(home, ".local", "share", "xprobe", "xprobe.db"), cfg.Storage.DBPath)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("XPROBE_PROBE_INTERVAL", "3s")
	t.Setenv("XPROBE_PROBE_STRATEGY", "tcp")

	cfg, err := LoadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Probe.Interval)
	assert.Equal(t, "tcp", cfg.Probe.Strategy)
}

func TestLoadConfigExplicitFileMissing(t *testing.T) {
	isolate(t)
	_, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRawConfigLifecycle(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	_, err := a.RawConfig(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyConfiguration)

	assert.ErrorIs(t, a.SetRawConfig(ctx, "   ", "cli"), pkgerrors.ErrEmptyConfiguration)
	assert.ErrorIs(t, a.SetRawConfig(ctx, "not a config", "cli"), pkgerrors.ErrConfigurationBuild)

	require.NoError(t, a.SetRawConfig(ctx, trojanLink, "cli"))
	raw, err := a.RawConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, trojanLink, raw)

	source, err := a.Storage.GetSetting(ctx, storage.SettingRawConfigSource)
	require.NoError(t, err)
	assert.Equal(t, "cli", source)

	require.NoError(t, a.ClearRawConfig(ctx))
	_, err = a.RawConfig(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyConfiguration)
}

func TestProbeOnceRequiresTunnel(t *testing.T) {
	a := newTestApp(t)

	_, err := a.ProbeOnce(context.Background(), false)
	assert.ErrorIs(t, err, pkgerrors.ErrTunnelNotConnected)
}

func TestProbeOnceForcedRecordsFailure(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	result, err := a.ProbeOnce(ctx, true)
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyConfiguration)
	require.NotNil(t, result)
	assert.False(t, result.Success)

	latest, err := a.Storage.GetLatestProbe(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, result.ID, latest.ID)
	assert.Contains(t, latest.ErrorMessage, "no raw configuration available")
}

func TestConnectWithoutBinary(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	if _, err := xray.FindBinary(); err == nil {
		t.Skip("xray is installed on this machine")
	}
	require.NoError(t, a.SetRawConfig(ctx, trojanLink, "cli"))

	_, err := a.Connect(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrCoreNotFound)
	assert.False(t, a.Tunnel.State().IsConnected())

	assert.ErrorIs(t, a.Disconnect(ctx), pkgerrors.ErrNoActiveConnection)
}

func TestImportSubscription(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("garbage line\n" + trojanLink + "\n"))
	}))
	defer server.Close()

	link, err := a.ImportSubscription(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "edge", link.Name)

	raw, err := a.RawConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, trojanLink, raw)
	source, err := a.Storage.GetSetting(ctx, storage.SettingRawConfigSource)
	require.NoError(t, err)
	assert.Equal(t, server.URL, source)
}

func TestProbePort(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, 10808, a.ProbePort())

	a.Config.Probe.Launch = false
	assert.Equal(t, 1080, a.ProbePort())
}

func TestWithLogFile(t *testing.T) {
	home := isolate(t)

	cfg := &Config{Log: LogConfig{Output: "stderr"}}
	require.NoError(t, WithLogFile()(cfg))
	assert.Equal(t, filepath.Join(home, ".cache", "xprobe", "xprobe.log"), cfg.Log.Output)

	cfg = &Config{Log: LogConfig{Output: "/var/log/xprobe.log"}}
	require.NoError(t, WithLogFile()(cfg))
	assert.Equal(t, "/var/log/xprobe.log", cfg.Log.Output)
}
