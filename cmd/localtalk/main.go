package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kalambet/localtalk/internal/config"
)

var version = "dev"

var (
	noColor bool

	cfg           config.Config
	closeLogger   = func() error { return nil }
	skipConfigFor = map[string]bool{"version": true, "help": true, "completion": true}
)

var rootCmd = &cobra.Command{
	Use:   "localtalk",
	Short: "Weather-aware local post generator",
	Long: `localtalk writes one short local post per run: it fetches the weather,
picks a topic and greeting for the local time, asks the retrieval service for
a grounded answer, and appends the result to the public feed files.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		detectColor()
		if skipConfigFor[cmd.Name()] {
			return nil
		}
		// A missing .env is normal outside local development.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level, err := config.ParseLevel(cfg.Log.Level)
		if err != nil {
			printWarning("%v, using info", err)
		}
		var logger *slog.Logger
		logger, closeLogger = config.SetupLogger(cfg.Log.File, level)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing log file: %v\n", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(
		generateCmd,
		statusCmd,
		weatherCmd,
		feedCmd,
		configCmd,
		serveCmd,
		reindexCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
