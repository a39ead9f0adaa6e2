package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"xprobe/internal/storage/models"
)

const trojanLink = "trojan://secret@t.example.org:8443?sni=t.example.org#edge"

// run executes the root command against an isolated home and database.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SUDO_USER", "")
	t.Setenv("SUDO_UID", "")
	t.Setenv("PATH", t.TempDir())
	t.Setenv("XPROBE_LOG_LEVEL", "error")

	appInstance = nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--db", dbPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "x.db"), "version")
	require.NoError(t, err)
	assert.Equal(t, "xprobe dev\n", out)
}

func TestConfigCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "x.db")

	out, err := run(t, db, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No configuration stored")

	out, err = run(t, db, "config", "set", trojanLink)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored trojan link configuration.")

	out, err = run(t, db, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Kind:    trojan link")
	assert.Contains(t, out, "Source:  cli")
	assert.Contains(t, out, trojanLink)

	out, err = run(t, db, "config", "show", "--effective")
	require.NoError(t, err)
	assert.Contains(t, out, `"protocol": "trojan"`)

	_, err = run(t, db, "config", "clear")
	require.NoError(t, err)
	out, err = run(t, db, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No configuration stored")
}

func TestPingRequiresTunnel(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "x.db"), "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xprobe connect")
}

func TestHistoryEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "x.db")

	out, err := run(t, db, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No probes recorded yet.")

	out, err = run(t, db, "history", "--output", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = run(t, db, "history", "--output", "xml")
	assert.Error(t, err)
}

func TestWriteStructured(t *testing.T) {
	ms := 320
	result := &models.ProbeResult{ID: 7, LatencyMS: &ms, Success: true, Strategy: "http", DurationMS: 410}

	var buf bytes.Buffer
	require.NoError(t, writeStructured(&buf, outputJSON, result))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(320), decoded["latency_ms"])

	buf.Reset()
	require.NoError(t, writeStructured(&buf, outputYAML, result))
	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, 320, fromYAML["latency_ms"])
	assert.Equal(t, "http", fromYAML["strategy"])
	assert.NotContains(t, buf.String(), "error_message")
}

func TestDescribeRaw(t *testing.T) {
	assert.Equal(t, "xray JSON", describeRaw(`  {"outbounds":[]}`))
	assert.Equal(t, "trojan link", describeRaw(trojanLink))
	assert.Equal(t, "share link", describeRaw("vless://broken"))
	assert.Equal(t, "subscription", describeRaw("dHJvamFuOi8v"))
}

func TestDescribeProbe(t *testing.T) {
	assert.Equal(t, "-- ms (no probes yet)", describeProbe(nil))

	ms := 1500
	ok := &models.ProbeResult{LatencyMS: &ms, Success: true, TestedAt: time.Now()}
	assert.Equal(t, "1500 ms (degraded, just now)", describeProbe(ok))

	failed := &models.ProbeResult{ErrorMessage: "probe unsuccessful", TestedAt: time.Now().Add(-2 * time.Hour)}
	assert.True(t, strings.HasPrefix(describeProbe(failed), "failed 2h ago"))
}
