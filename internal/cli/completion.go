package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"xprobe/internal/app"
	"xprobe/internal/storage"
)

// ensureApp lazily initializes appInstance for shell completion.
// Cobra may invoke ValidArgsFunction without running PersistentPreRunE.
func ensureApp() error {
	if appInstance != nil {
		return nil
	}
	var err error
	appInstance, err = app.New(v, configFile)
	return err
}

// completeSubscriptionURLs offers the source of the stored configuration
// when it was imported from a URL.
func completeSubscriptionURLs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	if err := ensureApp(); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	ctx := context.Background()
	source, err := appInstance.Storage.GetSetting(ctx, storage.SettingRawConfigSource)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	if strings.HasPrefix(source, "http") && strings.HasPrefix(source, toComplete) {
		completions = append(completions, source)
	}

	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeOutputFormats provides completion for --output flags.
func completeOutputFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
}
