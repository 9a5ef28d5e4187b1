// Package cli contains the rssreader commands.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"rssreader/internal/config"
	"rssreader/internal/logging"
)

var (
	logLevel  string
	logFormat string
	cfg       *config.Config
	logger    *slog.Logger
	version   = "dev"
)

// rootCmd runs the server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "rssreader",
	Short: "RSS reader backend synced with Inoreader",
	Long: `rssreader keeps a local copy of an Inoreader account and serves it over a REST API.

Example usage:
  rssreader                    # Start the API server and the sync scheduler
  rssreader sync               # Run one sync and exit
  rssreader cleanup            # Apply the retention policy once
  rssreader status             # Show the last sync and API usage`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	RunE: runServe,
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string reported by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json); overrides LOG_FORMAT")
	rootCmd.Version = version
}

func initConfig() error {
	var err error
	if cfg, err = config.Load(); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	logger = logging.Init(cfg.LogLevel, cfg.LogFormat)
	return nil
}
