// Command fotacos runs the photo album server and its maintenance tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fotacos/internal/config"
	"fotacos/internal/utils"
)

// rootFlags are shared by every command.
type rootFlags struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "fotacos",
		Short:         "Photo album with WebP normalization and thumbnails",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, ".env files to load (default ./.env)")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newListCmd(flags),
		newImportCmd(flags),
		newRemoveCmd(flags),
		newWatchCmd(flags),
	)
	return rootCmd
}

// load reads the environment files and the configuration and builds the logger.
func (flags *rootFlags) load() (config.Config, *zap.Logger, error) {
	if err := utils.LoadEnv(flags.envFiles...); err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	log, err := utils.NewLogger(cfg.Debug, cfg.LogDir)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
