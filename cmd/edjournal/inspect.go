package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/dlq"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/extension"
)

var (
	dlqClear         bool
	historyCommander string
	historyLimit     int
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List journal records that could not be parsed",
	RunE:  runDLQ,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent events from the history database",
	Long: `List events stored by the history extension, newest first.

Examples:
  edjournal history --commander Foo --limit 20`,
	RunE: runHistory,
}

func init() {
	dlqCmd.Flags().BoolVar(&dlqClear, "clear", false, "Remove the listed records")
	historyCmd.Flags().StringVar(&historyCommander, "commander", "", "Only this commander")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum events to list")
}

func runDLQ(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	q, err := dlq.New(dlqConfig(cfg.DeadLetter))
	if err != nil {
		return fmt.Errorf("failed to open dead letter queue: %w", err)
	}
	defer q.Close()

	entries, err := q.GetAll()
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), entries); err != nil {
		return err
	}
	if dlqClear {
		return q.Clear()
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Logging)

	h, err := extension.OpenHistory(cfg.Extensions.History.Path, logger)
	if err != nil {
		return err
	}
	defer h.Close()

	entries, err := h.Recent(cmd.Context(), historyCommander, historyLimit)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), entries)
}
