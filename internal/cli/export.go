package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bist-tracker/internal/app"
)

var (
	exportTicker string
	exportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export price and volume charts as PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportTicker == "" {
			return fmt.Errorf("--ticker must be provided")
		}

		paths, err := getApp().Export(cmd.Context(), app.ExportOptions{
			Ticker: exportTicker,
			Dir:    exportDir,
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTicker, "ticker", "", "Ticker to export")
	exportCmd.Flags().StringVar(&exportDir, "png", ".", "Directory to write PNG charts into")
}
