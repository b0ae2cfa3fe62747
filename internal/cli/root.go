package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bist-tracker/internal/app"
	"bist-tracker/internal/config"
	"bist-tracker/internal/logging"
	"bist-tracker/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	storePath string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "bisttracker",
	Short: "Track daily BIST stock prices and browse them on a dashboard",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd == versionCmd {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if storePath != "" {
			cfg.Store.Path = storePath
		}

		logger := logging.NewLogger(cfg.Logging)
		logger.Debug().Str("version", version.String()).Str("store", cfg.Store.Path).Msg("configuration loaded")
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Override store.path defined in config")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
