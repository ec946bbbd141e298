package loadout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
	"unicode/utf16"

	"github.com/tidwall/pretty"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/tracing"
)

// ErrNoLoadout is returned when there is nothing to export yet.
var ErrNoLoadout = errors.New("no ship loadout")

// exportTimeLayout stamps export file names.
const exportTimeLayout = "2006-01-02T15.04.05"

// Exporter writes ship loadouts as pretty-printed Loadout documents.
type Exporter struct {
	dir     string
	logger  *logging.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	now     func() time.Time

	writeFile func(name string, data []byte, perm os.FileMode) error
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(x *Exporter) { x.logger = logger.WithComponent("export") }
}

// WithMetrics counts written, skipped and failed exports.
func WithMetrics(collector *metrics.Collector) Option {
	return func(x *Exporter) { x.metrics = collector }
}

// WithTracer traces every export.
func WithTracer(tracer trace.Tracer) Option {
	return func(x *Exporter) { x.tracer = tracer }
}

// WithClock sets the clock used for export file names.
func WithClock(now func() time.Time) Option {
	return func(x *Exporter) { x.now = now }
}

// NewExporter creates an exporter writing into dir.
func NewExporter(dir string, opts ...Option) *Exporter {
	x := &Exporter{
		dir:       dir,
		logger:    logging.Global().WithComponent("export"),
		tracer:    noop.NewTracerProvider().Tracer("export"),
		now:       time.Now,
		writeFile: os.WriteFile,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Render returns the export text for st: the untimestamped Loadout document
// indented by two spaces.
func Render(st *state.CommanderState) ([]byte, error) {
	doc := Ship(st, false, time.Time{})
	if doc == nil {
		return nil, ErrNoLoadout
	}
	compact, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode loadout: %w", err)
	}
	// Width 0 puts every array element on its own line.
	out := pretty.PrettyOptions(compact, &pretty.Options{Indent: "  "})
	return bytes.TrimSuffix(out, []byte("\n")), nil
}

// Export writes the current ship to a new time-stamped file named after the
// ship, unless the latest existing export of that ship is identical. It
// returns the path written, or "" when the write was skipped.
func (x *Exporter) Export(ctx context.Context, st *state.CommanderState) (string, error) {
	ship := ShipFileName(st.ShipName, st.ShipType)
	_, span := tracing.TraceExport(ctx, x.tracer, ship)
	defer span.End()

	data, err := Render(st)
	if err != nil {
		return "", err
	}

	if last := x.latest(ship); last != "" {
		old, err := os.ReadFile(last)
		if err != nil {
			x.logger.Warn().Err(err).Str("path", last).Msg("Failed to read previous loadout export")
		} else if bytes.Equal(old, data) {
			x.logger.Debug().Str("ship", ship).Msg("Loadout unchanged, not exporting")
			if x.metrics != nil {
				x.metrics.ExportsSkipped.Inc()
			}
			return "", nil
		}
	}

	path := filepath.Join(x.dir, fmt.Sprintf("%s.%s.txt", ship, x.now().Local().Format(exportTimeLayout)))
	if err := x.write(path, data); err != nil {
		span.RecordError(err)
		return "", err
	}
	return path, nil
}

// ExportTo writes the current ship to path, always.
func (x *Exporter) ExportTo(ctx context.Context, st *state.CommanderState, path string) error {
	_, span := tracing.TraceExport(ctx, x.tracer, ShipFileName(st.ShipName, st.ShipType))
	defer span.End()

	data, err := Render(st)
	if err != nil {
		return err
	}
	if err := x.write(path, data); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// write tries the UTF-8 text first and an ASCII-only rendering once after
// that.
func (x *Exporter) write(path string, data []byte) error {
	err := x.writeFile(path, data, 0644)
	if err != nil {
		x.logger.Warn().Err(err).Str("path", path).Msg("Failed to write loadout export, retrying as ASCII")
		err = x.writeFile(path, asciiJSON(data), 0644)
	}
	if err != nil {
		x.logger.Error().Err(err).Str("path", path).Msg("Failed to write loadout export")
		if x.metrics != nil {
			x.metrics.ExportFailures.Inc()
		}
		return fmt.Errorf("failed to write loadout export: %w", err)
	}

	x.logger.Info().Str("path", path).Msg("Exported ship loadout")
	if x.metrics != nil {
		x.metrics.ExportsWritten.Inc()
	}
	return nil
}

// latest returns the most recent export of ship in the export directory.
func (x *Exporter) latest(ship string) string {
	entries, err := os.ReadDir(x.dir)
	if err != nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(ship) + `\.\d{4}-\d\d-\d\dT\d\d\.\d\d\.\d\d\.txt$`)

	var names []string
	for _, e := range entries {
		if !e.IsDir() && re.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(x.dir, names[len(names)-1])
}

// asciiJSON escapes every non-ASCII character of a JSON text as \uXXXX.
// Non-ASCII bytes only occur inside strings, so the result decodes to the
// same value.
func asciiJSON(data []byte) []byte {
	var out bytes.Buffer
	for _, r := range string(data) {
		if r < 0x80 {
			out.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}
