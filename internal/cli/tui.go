package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xprobe/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive latency view",
	Long: `Launch the full-screen latency view. The probe scheduler runs while the
view is open; press 'p' to probe now, 'c'/'d' to connect or disconnect,
'?' for help and 'q' to quit.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{fileLogAnnotation: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scheduler, err := appInstance.NewScheduler()
		if err != nil {
			return err
		}

		p := tui.NewProgram(tui.Deps{
			Storage:  appInstance.Storage,
			Backend:  appInstance,
			Tunnel:   appInstance.Tunnel,
			Prober:   scheduler,
			Interval: appInstance.Config.Probe.Interval,
			Strategy: appInstance.Engine.StrategyName(),
		})
		scheduler.Subscribe(tui.Observer(p))
		appInstance.Tunnel.OnStateChange(tui.StateObserver(p))

		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()

		go func() {
			<-ctx.Done()
			p.Quit()
		}()

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
