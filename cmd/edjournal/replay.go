package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/buffer"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/engine"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/loadout"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/parser"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

// Journal records can carry a full ship loadout on one line.
const maxRecordBytes = 4 * 1024 * 1024

var (
	replayFormat string
	exportOut    string
	exportDir    string
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE...",
	Short: "Apply journal files offline and print the commander state",
	Long: `Apply every record of the given journal files, in order, to a fresh
commander state and print the result.

Examples:
  # Print the state after a stored session
  edjournal replay stored.edd

  # Print only the current ship loadout document
  edjournal replay --format loadout current.edd | jq .Modules`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

var exportCmd = &cobra.Command{
	Use:   "export FILE...",
	Short: "Replay journal files and write the ship loadout export",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExport,
}

func init() {
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "state",
		"Output: state (full snapshot) or loadout (Loadout document)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "",
		"Write to this file instead of a time-stamped file in the export directory")
	exportCmd.Flags().StringVar(&exportDir, "dir", "",
		"Export directory (overrides export.dir)")
}

// replayFiles applies every record of paths to a new state.
func replayFiles(ctx context.Context, paths []string, logger *logging.Logger) (*state.CommanderState, int, error) {
	p := parser.New(parser.WithLogger(logger))
	e := engine.New(engine.WithLogger(logger))
	st := state.New()
	applied := 0

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, applied, fmt.Errorf("failed to open journal: %w", err)
		}
		n, err := replay(ctx, f, p, e, st)
		f.Close()
		applied += n
		if err != nil {
			return nil, applied, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return st, applied, nil
}

func replay(ctx context.Context, r io.Reader, p *parser.Parser, e *engine.Engine, st *state.CommanderState) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		e.Apply(ctx, p.Parse(line, buffer.RoleStored), st)
		n++
	}
	return n, scanner.Err()
}

func writeJSON(w io.Writer, v any) error {
	enc := sonic.ConfigDefault.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Logging)

	st, n, err := replayFiles(cmd.Context(), args, logger)
	if err != nil {
		return err
	}
	logger.Debug().Int("records", n).Msg("Replay complete")

	switch replayFormat {
	case "state":
		return writeJSON(cmd.OutOrStdout(), st)
	case "loadout":
		data, err := loadout.Render(st)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
		return err
	default:
		return fmt.Errorf("invalid format %q: must be one of: state, loadout", replayFormat)
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Logging)

	st, _, err := replayFiles(cmd.Context(), args, logger)
	if err != nil {
		return err
	}

	dir := cfg.Export.Dir
	if exportDir != "" {
		dir = exportDir
	}
	x := loadout.NewExporter(dir, loadout.WithLogger(logger))

	if exportOut != "" {
		if err := x.ExportTo(cmd.Context(), st, exportOut); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), exportOut)
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	path, err := x.Export(cmd.Context(), st)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged\n", filepath.Join(dir, loadout.ShipFileName(st.ShipName, st.ShipType)))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
