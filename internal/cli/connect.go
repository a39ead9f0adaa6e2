package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"xprobe/internal/probe"
	"xprobe/internal/storage/models"
	pkgerrors "xprobe/pkg/errors"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Start the tunnel from the stored configuration",
	Long: `Build the effective xray configuration from the stored raw configuration
and start the tunnel core. The core keeps running after xprobe exits; use
'xprobe disconnect' to stop it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()
		cfg := appInstance.Config.Core

		fmt.Fprintln(out, "Connecting...")
		conn, err := appInstance.Connect(ctx)
		if errors.Is(err, pkgerrors.ErrCoreAlreadyRunning) {
			return fmt.Errorf("already connected, use 'xprobe disconnect' first")
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "  Name:    %s\n", conn.Name)
		fmt.Fprintf(out, "  SOCKS5:  127.0.0.1:%d\n", cfg.SocksPort)
		fmt.Fprintf(out, "  API:     127.0.0.1:%d\n", cfg.APIPort)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Connected. Run 'xprobe watch' or 'xprobe tui' to follow latency.")
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Stop the tunnel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appInstance.Disconnect(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Disconnected.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tunnel status and the last latency reading",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		out := cmd.OutOrStdout()

		state := appInstance.Tunnel.State()
		conn, _ := appInstance.Storage.GetActiveConnection(ctx)

		fmt.Fprintln(out, "Tunnel Status")
		fmt.Fprintln(out, "═════════════")
		fmt.Fprintln(out)

		if state.IsConnected() {
			fmt.Fprintf(out, "State:      ● %s\n", state)
		} else {
			fmt.Fprintf(out, "State:      ○ %s\n", state)
		}

		if status, err := appInstance.Tunnel.GetStatus(); err == nil && status.Running {
			fmt.Fprintf(out, "PID:        %d\n", status.PID)
			if !status.StartedAt.IsZero() {
				fmt.Fprintf(out, "Uptime:     %s\n", status.Uptime.Round(time.Second))
			}
		}
		if conn != nil {
			fmt.Fprintf(out, "Name:       %s\n", conn.Name)
			fmt.Fprintf(out, "SOCKS5:     127.0.0.1:%d\n", conn.SOCKSPort)
		}

		if state.IsConnected() {
			if stats, err := appInstance.Tunnel.GetStats(); err == nil {
				fmt.Fprintf(out, "Traffic:    ↑ %s  ↓ %s\n", formatBytes(stats.TotalUpload), formatBytes(stats.TotalDownload))
			}
		}

		latest, err := appInstance.Storage.GetLatestProbe(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Latency:    %s\n", describeProbe(latest))

		if conn != nil && !state.IsConnected() {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "⚠ Core process is not running. Connection may have been interrupted.")
			fmt.Fprintln(out, "  Use 'xprobe disconnect' to clear stale state, then reconnect.")
		}
		return nil
	},
}

// describeProbe renders the last recorded probe for status output.
func describeProbe(result *models.ProbeResult) string {
	if result == nil {
		return "-- ms (no probes yet)"
	}
	if !result.Success || result.LatencyMS == nil {
		return fmt.Sprintf("failed %s: %s", formatTime(result.TestedAt), result.ErrorMessage)
	}
	reading := probe.Reading{MS: *result.LatencyMS, Valid: true, At: result.TestedAt}
	return fmt.Sprintf("%s (%s, %s)", reading, reading.Severity(), formatTime(result.TestedAt))
}

func formatTime(t time.Time) string {
	diff := time.Since(t)

	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	}
	if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(statusCmd)
}
