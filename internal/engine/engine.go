// Package engine applies journal events to the commander state through an
// explicit table of per-kind transitions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/tracing"
)

var (
	ErrMissingField            = errors.New("missing field")
	ErrModulesUnknown          = errors.New("ship modules not known")
	ErrInvalidEngineerProgress = errors.New("invalid EngineerProgress")
	ErrUnknownSuit             = errors.New("suit or suit loadout not known")
)

type handler func(ev *journal.Event, st *state.CommanderState) error

// Engine dispatches events to their state transitions.
type Engine struct {
	handlers map[journal.Kind]handler
	logger   *logging.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) { e.logger = logger.WithComponent("engine") }
}

// WithMetrics records applied and failed events.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithTracer wraps every transition in a span.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New creates an engine with every known transition registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		handlers: make(map[journal.Kind]handler),
		logger:   logging.Global().WithComponent("engine"),
		tracer:   otel.Tracer("edjournal"),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registerSession()
	e.registerShip()
	e.registerLocation()
	e.registerProgression()
	e.registerInventory()
	e.registerOnFoot()
	e.registerSuits()
	e.registerFinance()
	e.registerCrew()

	return e
}

func (e *Engine) on(h handler, kinds ...journal.Kind) {
	for _, k := range kinds {
		e.handlers[k] = h
	}
}

func noop(*journal.Event, *state.CommanderState) error { return nil }

// Handles reports whether kind has a registered transition.
func (e *Engine) Handles(kind journal.Kind) bool {
	_, ok := e.handlers[kind]
	return ok
}

// Apply mutates st according to ev and returns ev. It never panics: a failing
// transition is logged and counted, and the event is still returned.
func (e *Engine) Apply(ctx context.Context, ev *journal.Event, st *state.CommanderState) (out *journal.Event) {
	if ev == nil {
		return journal.NullEvent()
	}
	out = ev
	if ev.IsNull() {
		return ev
	}

	h, ok := e.handlers[ev.Kind]
	if !ok {
		e.logger.Debug().Str("event", string(ev.Kind)).Msg("No transition for event")
		return ev
	}

	ctx, span := tracing.TraceApply(ctx, e.tracer, string(ev.Kind))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, ev, fmt.Errorf("panic: %v", r))
		}
		if e.metrics != nil {
			e.metrics.ApplyDuration.WithLabelValues(string(ev.Kind)).Observe(time.Since(start).Seconds())
		}
		span.End()
	}()

	if err := h(ev, st); err != nil {
		e.fail(ctx, ev, err)
		return ev
	}

	if e.metrics != nil {
		e.metrics.EventsApplied.WithLabelValues(string(ev.Kind)).Inc()
	}
	return ev
}

func (e *Engine) fail(ctx context.Context, ev *journal.Event, err error) {
	tracing.RecordError(ctx, err)
	if e.metrics != nil {
		e.metrics.ApplyFailures.WithLabelValues(string(ev.Kind)).Inc()
	}
	logEvent := e.logger.Error().Err(err).Str("event", string(ev.Kind))
	if gjson.ValidBytes(ev.Raw) {
		logEvent = logEvent.RawJSON("record", ev.Raw)
	}
	logEvent.Msg("Failed to apply event")
}

// require checks that every named top-level field is present.
func require(ev *journal.Event, fields ...string) error {
	for _, f := range fields {
		if !ev.Has(f) {
			return fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}
	return nil
}

// decode checks the required fields, then unmarshals the payload into v.
func decode(ev *journal.Event, v any, fields ...string) error {
	if err := require(ev, fields...); err != nil {
		return err
	}
	return ev.Decode(v)
}

// countOr returns the integer under key, or def when it is absent.
func countOr(r gjson.Result, key string, def int64) int64 {
	v := r.Get(key)
	if !v.Exists() {
		return def
	}
	return v.Int()
}
