package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bist-tracker/internal/app"
)

var (
	updateWindow string
	updateDryRun bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch recent daily bars and append new rows to the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := getApp().Update(cmd.Context(), app.UpdateOptions{
			Window: updateWindow,
			DryRun: updateDryRun,
		})
		if err != nil {
			return err
		}
		switch {
		case report.Skipped:
			fmt.Fprintln(cmd.OutOrStdout(), "another update is running; skipped")
		case updateDryRun:
			fmt.Fprintf(cmd.OutOrStdout(), "%d new rows (dry run)\n", report.Pending)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%d new rows appended\n", report.Appended)
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateWindow, "window", "", "Trailing window to fetch: 1d, 10d or 2mo (defaults to config)")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "Fetch and deduplicate without writing the store")
}
