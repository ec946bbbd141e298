package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/config"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
)

var (
	// Set by ldflags.
	version = "0.1.0"
	commit  = "none"

	configFile string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "edjournal",
	Short: "Follow the game journal and keep the commander state",
	Long: `edjournal follows the journal files written by the game harness,
rebuilds the commander's state from every event and hands each event to
the configured extensions (Kafka, Elasticsearch, S3, a local history
database and the EDSY shipyard link).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Path to configuration file (defaults and EDJOURNAL_* variables when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(dlqCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "edjournal %s (commit: %s)\n", version, commit)
	},
}

// loadConfig reads --config, or the environment alone when it is not set.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) *logging.Logger {
	logger := logging.New(logging.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: os.Stderr,
	})
	logging.SetGlobal(logger)
	return logger
}
