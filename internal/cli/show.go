package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bist-tracker/internal/app"
)

var (
	showTicker string
	showRows   int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the ticker list and recent rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showRows < 0 {
			return fmt.Errorf("--rows must not be negative")
		}

		opts := app.ShowOptions{
			Ticker: showTicker,
			Rows:   showRows,
		}

		return getApp().Show(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showTicker, "ticker", "", "Ticker to detail (defaults to the first one)")
	showCmd.Flags().IntVar(&showRows, "rows", 0, "Number of rows to print (defaults to dashboard.table_rows)")
}
