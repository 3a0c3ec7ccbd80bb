package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/app"
	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "marksync",
	Short: "Back up and restore a bookmark tree to a single Google Drive snapshot",
	Long: `marksync keeps one JSON snapshot of a local bookmark tree in Google Drive.

Backup uploads the whole tree, replacing the previous snapshot.
Restore downloads it and rebuilds the children of every root folder.
Configuration is read from MARKSYNC_* environment variables and an
optional .env file (MARKSYNC_ENV_FILE).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, backupCmd, restoreCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ marksync: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and wires the engine. The returned cleanup
// closes Redis and flushes the logger.
func setup(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	loggerClient := logger.NewWithOptions(logger.Options{
		Level:      cfg.LogLevel,
		Pretty:     cfg.PrettyLog,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	a, err := app.New(ctx, cfg, loggerClient)
	if err != nil {
		_ = loggerClient.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		a.Close()
		_ = loggerClient.Sync()
	}
	return a, cleanup, nil
}
