// Package commands implements the xpensectl operator CLI.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xpense/backend/internal/app"
	"github.com/xpense/backend/internal/config"
	"github.com/xpense/backend/internal/logging"
)

type rootOptions struct {
	configFile string
	storage    string
	noRedis    bool
}

// open builds the application from configuration and the global flags.
func (o *rootOptions) open(ctx context.Context, migrate bool) (*app.App, error) {
	if err := config.Init(o.configFile); err != nil {
		return nil, err
	}
	cfg := config.Load()
	if o.storage != "" {
		cfg.StorageType = o.storage
	}
	if o.noRedis {
		cfg.RedisEnabled = false
	}

	if err := logging.Init(cfg.LogLevel, cfg.Env, cfg.LogDir); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logging.Logger, migrate)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "xpensectl",
		Short: "Operate the xpense ledger and its exchange rate cache",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", ".env", "configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "override storage.type (postgres or memory)")
	rootCmd.PersistentFlags().BoolVar(&opts.noRedis, "no-redis", false, "keep sync settings in memory")

	rootCmd.AddCommand(
		newMigrateCommand(opts),
		newSyncRatesCommand(opts),
		newConvertCommand(opts),
		newTotalCommand(opts),
	)

	return rootCmd
}
