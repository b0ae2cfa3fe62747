package cli

import (
	"github.com/spf13/cobra"

	"bist-tracker/internal/app"
)

var (
	backfillWindow string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch the longest window and copy the store into the database mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Backfill(cmd.Context(), app.UpdateOptions{
			Window: backfillWindow,
			DryRun: backfillDryRun,
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillWindow, "window", "2mo", "Trailing window to fetch")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
