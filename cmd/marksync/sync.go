package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
)

// errRunFailed is returned after a failed run has been reported; main only
// sets the exit code.
var errRunFailed = errors.New("run failed")

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload the local bookmark tree as the remote snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnce(cmd, func(ctx context.Context, s *orchestrator.Service) orchestrator.Result {
			return s.Backup(ctx, orchestrator.TriggerCLI)
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local root folders' contents with the remote snapshot",
	Long: `Download the remote snapshot and rebuild the children of every local
root folder from it. Root folders themselves are never removed. Nothing
local is modified if the snapshot is missing or malformed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnce(cmd, func(ctx context.Context, s *orchestrator.Service) orchestrator.Result {
			return s.Restore(ctx, orchestrator.TriggerCLI)
		})
	},
}

func runOnce(cmd *cobra.Command, run func(context.Context, *orchestrator.Service) orchestrator.Result) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	res := run(cmd.Context(), a.Service())
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", errRunFailed, res.Error)
	}
	return nil
}

func printResult(w io.Writer, res orchestrator.Result) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
