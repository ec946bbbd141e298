// Package extension delivers every consumed journal event to the configured
// extensions, one after the other, in registration order.
package extension

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/tracing"
)

// ErrRegistryClosed is returned when registering after Close.
var ErrRegistryClosed = errors.New("extension registry is closed")

// Notification is what an extension sees for one journal event.
type Notification struct {
	Commander string
	IsBeta    bool
	System    string
	Station   string
	Event     *journal.Event

	// State is a snapshot; extensions may keep it.
	State *state.CommanderState
}

// Extension receives journal events. JournalEntry returns a short message for
// the user when something went wrong, "" otherwise.
type Extension interface {
	Name() string
	JournalEntry(ctx context.Context, n Notification) string
}

// Registry holds extensions in registration order.
type Registry struct {
	mu         sync.RWMutex
	extensions []Extension
	closed     bool

	logger  *logging.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) { r.logger = logger.WithComponent("extensions") }
}

// WithMetrics records deliveries and failures.
func WithMetrics(collector *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = collector }
}

// WithTracer traces every delivery.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) { r.tracer = tracer }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger: logging.Global().WithComponent("extensions"),
		tracer: noop.NewTracerProvider().Tracer("extensions"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends ext.
func (r *Registry) Register(ext Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	r.extensions = append(r.extensions, ext)
	r.logger.Info().Str("extension", ext.Name()).Msg("Registered extension")
	return nil
}

// Extensions returns the registered extensions.
func (r *Registry) Extensions() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Extension, len(r.extensions))
	copy(out, r.extensions)
	return out
}

// Len returns the number of registered extensions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.extensions)
}

// Notify delivers n to every extension and returns the first non-empty
// message. A panicking extension is logged and counted like a failed one.
func (r *Registry) Notify(ctx context.Context, n Notification) string {
	var status string
	for _, ext := range r.Extensions() {
		if msg := r.deliver(ctx, ext, n); msg != "" && status == "" {
			status = msg
		}
	}
	return status
}

func (r *Registry) deliver(ctx context.Context, ext Extension, n Notification) (msg string) {
	name := ext.Name()
	kind := ""
	if n.Event != nil {
		kind = string(n.Event.Kind)
	}

	ctx, span := tracing.TraceNotify(ctx, r.tracer, name, kind)
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			msg = fmt.Sprintf("%s: internal error", name)
			r.logger.Error().
				Str("extension", name).
				Str("event", kind).
				Interface("panic", p).
				Msg("Extension panicked")
		}
		if msg != "" {
			span.RecordError(errors.New(msg))
			if r.metrics != nil {
				r.metrics.ExtensionFailures.WithLabelValues(name).Inc()
			}
		}
		if r.metrics != nil {
			r.metrics.ExtensionNotifications.WithLabelValues(name).Inc()
			r.metrics.ExtensionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
		span.End()
	}()

	msg = ext.JournalEntry(ctx, n)
	if msg != "" {
		r.logger.Warn().Str("extension", name).Str("event", kind).Str("status", msg).Msg("Extension reported a problem")
	}
	return msg
}

// Close closes every extension that holds resources and refuses further
// registrations.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	extensions := r.extensions
	r.mu.Unlock()

	var errs []error
	for _, ext := range extensions {
		c, ok := ext.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ext.Name(), err))
		}
	}
	return errors.Join(errs...)
}
