package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP command surface and the backup triggers",
	Long: `Serve POST /api/backup and POST /api/restore, plus /api/status,
/healthz and /readyz. Periodic backups (MARKSYNC_BACKUP_INTERVAL) and
bookmark file watching (MARKSYNC_WATCH_BOOKMARKS) run in the background
until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		return a.Run(cmd.Context())
	},
}
