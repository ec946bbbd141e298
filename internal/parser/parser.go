// Package parser turns raw journal records into events for the consumer.
// Malformed records never reach the engine: they are logged, counted and
// kept in the dead letter queue, and the consumer sees the null event.
package parser

import (
	"errors"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/dlq"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
)

// Failure reasons used as the metrics label.
const (
	ReasonInvalidJSON      = "invalid_json"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonBadTimestamp     = "bad_timestamp"
	ReasonMissingEvent     = "missing_event"
	ReasonOther            = "other"
)

// maxLogged caps how much of a bad record ends up in a log line.
const maxLogged = 512

// Parser wraps journal.Parse with the side effects of a rejected record.
type Parser struct {
	logger  *logging.Logger
	metrics *metrics.Collector
	dlq     *dlq.Queue
	limiter *rate.Limiter
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger for malformed record warnings.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Parser) { p.logger = logger.WithComponent("parser") }
}

// WithMetrics counts parse failures in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(p *Parser) { p.metrics = collector }
}

// WithDeadLetterQueue keeps malformed records in q.
func WithDeadLetterQueue(q *dlq.Queue) Option {
	return func(p *Parser) { p.dlq = q }
}

// WithWarnRate limits malformed record warnings to every per second, with
// bursts of burst. A corrupted journal would otherwise flood the log.
func WithWarnRate(every rate.Limit, burst int) Option {
	return func(p *Parser) { p.limiter = rate.NewLimiter(every, burst) }
}

// New creates a parser. Without options it only parses.
func New(opts ...Option) *Parser {
	p := &Parser{
		logger:  logging.Global().WithComponent("parser"),
		limiter: rate.NewLimiter(rate.Every(time.Second), 10),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse returns the event for record, or the null event when the record is
// malformed. It never returns nil.
func (p *Parser) Parse(record []byte, role string) *journal.Event {
	res := journal.Parse(record)
	if !res.Malformed() {
		return res.Event
	}

	reason := Reason(res.Err)
	if p.metrics != nil {
		p.metrics.ParseFailures.WithLabelValues(reason).Inc()
	}

	if p.limiter.Allow() {
		p.logger.Warn().
			Err(res.Err).
			Str("role", role).
			Str("reason", reason).
			Str("record", truncate(record)).
			Msg("Skipping malformed journal record")
	}

	if p.dlq != nil {
		meta := map[string]string{"reason": reason, "length": strconv.Itoa(len(record))}
		if err := p.dlq.Enqueue(record, role, res.Err, meta); err != nil {
			p.logger.Debug().Err(err).Msg("Failed to write malformed record to DLQ")
		} else if p.metrics != nil {
			p.metrics.DLQEventsWritten.Inc()
			p.metrics.DLQSize.Set(float64(p.dlq.Size()))
		}
	}

	return res.Event
}

// Reason classifies a parse error for metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, journal.ErrInvalidJSON):
		return ReasonInvalidJSON
	case errors.Is(err, journal.ErrMissingTimestamp):
		return ReasonMissingTimestamp
	case errors.Is(err, journal.ErrBadTimestamp):
		return ReasonBadTimestamp
	case errors.Is(err, journal.ErrMissingEvent):
		return ReasonMissingEvent
	default:
		return ReasonOther
	}
}

func truncate(record []byte) string {
	if len(record) > maxLogged {
		return string(record[:maxLogged]) + "..."
	}
	return string(record)
}
