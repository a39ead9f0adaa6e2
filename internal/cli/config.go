package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"xprobe/internal/config/share"
	"xprobe/internal/storage"
	pkgerrors "xprobe/pkg/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the raw configuration",
	Long: `Set, import, show, and clear the raw configuration the tunnel and the
latency probe are built from.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set [raw]",
	Short: "Store a raw configuration",
	Long: `Store a raw configuration: an xray JSON document, a share link, or a
subscription body. Use --file to read it from a file, or "-" for stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		file, _ := cmd.Flags().GetString("file")

		var raw, source string
		switch {
		case file != "":
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			raw, source = string(data), file
		case len(args) == 1:
			raw, source = args[0], "cli"
		default:
			return fmt.Errorf("please pass a raw configuration or use --file")
		}

		if err := appInstance.SetRawConfig(ctx, raw, source); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Stored %s configuration.\n", describeRaw(raw))
		return nil
	},
}

var configImportCmd = &cobra.Command{
	Use:               "import <subscription-url>",
	Short:             "Fetch a subscription and store its first usable link",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeSubscriptionURLs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Fetching %s...\n", args[0])
		link, err := appInstance.ImportSubscription(ctx, args[0])
		if err != nil {
			return err
		}

		name := link.Name
		if name == "" {
			name = fmt.Sprintf("%s:%d", link.Address, link.Port)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s).\n", name, link.Protocol)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored raw configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		effective, _ := cmd.Flags().GetBool("effective")
		out := cmd.OutOrStdout()

		raw, err := appInstance.RawConfig(ctx)
		if errors.Is(err, pkgerrors.ErrEmptyConfiguration) {
			fmt.Fprintln(out, "No configuration stored. Use 'xprobe config set' or 'xprobe config import'.")
			return nil
		}
		if err != nil {
			return err
		}

		if effective {
			cfg := appInstance.Config.Core
			data, err := appInstance.Builder.BuildConfigurationData(cfg.SocksPort, cfg.APIPort, raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		source, _ := appInstance.Storage.GetSetting(ctx, storage.SettingRawConfigSource)
		fmt.Fprintf(out, "Kind:    %s\n", describeRaw(raw))
		if source != "" {
			fmt.Fprintf(out, "Source:  %s\n", source)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, raw)
		return nil
	},
}

var configClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored raw configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appInstance.ClearRawConfig(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration cleared. The latency probe stays idle until a new one is set.")
		return nil
	},
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return data, nil
}

// describeRaw names the kind of raw configuration.
func describeRaw(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "{"):
		return "xray JSON"
	case share.IsLink(raw):
		if link, err := share.Parse(raw); err == nil {
			return link.Protocol + " link"
		}
		return "share link"
	default:
		return "subscription"
	}
}

func init() {
	configSetCmd.Flags().StringP("file", "f", "", "read the configuration from a file (- for stdin)")
	configShowCmd.Flags().Bool("effective", false, "print the generated xray configuration")

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configImportCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configClearCmd)

	rootCmd.AddCommand(configCmd)
}
