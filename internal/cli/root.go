package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"xprobe/internal/app"
)

var (
	appInstance *app.App
	version     = "dev"

	v          = viper.New()
	configFile string
)

// Command annotations read by the root command.
const (
	// noAppAnnotation marks commands that run without opening storage.
	noAppAnnotation = "xprobe/no-app"
	// fileLogAnnotation marks commands that own the terminal, so console
	// logs go to a file instead.
	fileLogAnnotation = "xprobe/file-log"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "xprobe",
	Short: "xprobe - Xray tunnel with a live latency probe",
	Long: `xprobe - Xray tunnel with a live latency probe

  Keeps one xray tunnel up and measures round-trip latency through its
  local SOCKS5 proxy every few seconds while it is connected.

  Quick start:
    xprobe config set "vless://..."
    xprobe connect
    xprobe watch        # or: xprobe tui

  Raw configuration may be a full xray JSON document, a share link
  (vless, vmess, trojan, ss) or a subscription body.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := cmd.Annotations[noAppAnnotation]; ok {
			return nil
		}
		if appInstance != nil {
			return nil
		}
		var opts []app.Option
		if _, ok := cmd.Annotations[fileLogAnnotation]; ok {
			opts = append(opts, app.WithLogFile())
		}
		var err error
		appInstance, err = app.New(v, configFile, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appInstance != nil {
			err := appInstance.Close()
			appInstance = nil
			return err
		}
		return nil
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file path (default ~/.config/xprobe/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("db", "", "database path")

	v.BindPFlag("log.level", flags.Lookup("log-level"))
	v.BindPFlag("storage.db_path", flags.Lookup("db"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{noAppAnnotation: ""},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "xprobe %s\n", version)
	},
}
