package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"xprobe/internal/probe"
	"xprobe/internal/storage/models"
	pkgerrors "xprobe/pkg/errors"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Run one latency probe now",
	Long: `Run one latency probe through the local SOCKS5 proxy and record it.

The tunnel must be connected unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")
		if err := validateOutput(format); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := appInstance.ProbeOnce(ctx, force)
		if errors.Is(err, pkgerrors.ErrTunnelNotConnected) {
			return fmt.Errorf("%w, run 'xprobe connect' or pass --force", err)
		}
		if result == nil {
			return err
		}

		out := cmd.OutOrStdout()
		if format != outputText {
			if writeErr := writeStructured(out, format, result); writeErr != nil {
				return writeErr
			}
			return err
		}

		if result.Success && result.LatencyMS != nil {
			reading := probe.Reading{MS: *result.LatencyMS, Valid: true}
			fmt.Fprintf(out, "Ping: %s (%s)\n", reading, reading.Severity())
			return nil
		}
		fmt.Fprintln(out, "Ping: -- ms")
		return err
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Probe latency periodically until interrupted",
	Long: `Run the latency probe scheduler in the foreground. A probe fires every
interval while the tunnel is connected; every outcome is logged and
recorded to history. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
			appInstance.Config.Probe.Interval = interval
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scheduler, err := appInstance.NewScheduler()
		if err != nil {
			return err
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		return scheduler.Stop()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded probe results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("output")
		if err := validateOutput(format); err != nil {
			return err
		}

		history, err := appInstance.Storage.GetProbeHistory(ctx, limit)
		if err != nil {
			return err
		}
		if history == nil {
			history = []*models.ProbeResult{}
		}

		out := cmd.OutOrStdout()
		if format != outputText {
			return writeStructured(out, format, history)
		}

		if len(history) == 0 {
			fmt.Fprintln(out, "No probes recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSTRATEGY\tLATENCY\tSEVERITY\tTOOK\tSTATUS")
		fmt.Fprintln(w, "----\t--------\t-------\t--------\t----\t------")

		for _, entry := range history {
			latStr := "-- ms"
			sevStr := probe.SeverityUnknown.String()
			statusStr := "FAIL " + entry.ErrorMessage
			if entry.Success && entry.LatencyMS != nil {
				reading := probe.Reading{MS: *entry.LatencyMS, Valid: true}
				latStr = reading.String()
				sevStr = reading.Severity().String()
				statusStr = "OK"
			}
			took := (time.Duration(entry.DurationMS) * time.Millisecond).String()
			timeStr := entry.TestedAt.Local().Format("2006-01-02 15:04:05")
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				timeStr, entry.Strategy, latStr, sevStr, took, statusStr)
		}
		return w.Flush()
	},
}

func init() {
	pingCmd.Flags().StringP("output", "o", outputText, "output format (text, json, yaml)")
	pingCmd.Flags().BoolP("force", "f", false, "probe even if the tunnel is not connected")
	pingCmd.RegisterFlagCompletionFunc("output", completeOutputFormats)

	watchCmd.Flags().Duration("interval", 0, "probe interval (default from config, 10s)")

	historyCmd.Flags().IntP("limit", "n", 20, "number of results to show (0 for all)")
	historyCmd.Flags().StringP("output", "o", outputText, "output format (text, json, yaml)")
	historyCmd.RegisterFlagCompletionFunc("output", completeOutputFormats)

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}
