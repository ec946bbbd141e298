// Package monitor ties the journal watcher to the commander state.
//
// Live records are queued raw and only parsed and applied when the consumer
// asks for them. Backlog records are applied straight away to a private
// aggregate, which is handed to the consumer once the backlog ends.
//
// The queue blocks the watcher when full, so the consumer must be draining
// before Start is called. A live record's offset is checkpointed only after
// the consumer applied it.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/buffer"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/engine"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/parser"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/tailer"
)

// Config holds monitor configuration
type Config struct {
	Dir          string
	PollInterval time.Duration
	Resume       bool

	QueueSize int

	StopTimeout time.Duration
}

// Monitor owns the live aggregate. Everything but Start, Stop and Status must
// be called from the single consumer goroutine.
type Monitor struct {
	cfg Config

	engine *engine.Engine
	parser *parser.Parser
	queue  *buffer.RingBuffer
	tailer *tailer.Tailer

	state *state.CommanderState

	// Backlog fast-forward, touched only by the watcher goroutine.
	replay  *engine.Engine
	backlog *state.CommanderState
	lastloc bool

	checkpoints *checkpoint.Manager
	logger      *logging.Logger
	metrics     *metrics.Collector
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithMetrics records queue and engine metrics in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(m *Monitor) { m.metrics = collector }
}

// WithTracer traces reads and transitions.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Monitor) { m.tracer = tracer }
}

// WithParser replaces the default parser, e.g. to attach a dead letter queue.
func WithParser(p *parser.Parser) Option {
	return func(m *Monitor) { m.parser = p }
}

// WithCheckpoints persists watch positions through mgr.
func WithCheckpoints(mgr *checkpoint.Manager) Option {
	return func(m *Monitor) { m.checkpoints = mgr }
}

// WithClock sets the clock used to stamp synthetic StartUp records.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a monitor for the journal directory cfg.Dir.
func New(cfg Config, opts ...Option) (*Monitor, error) {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	m := &Monitor{
		cfg:     cfg,
		state:   state.New(),
		backlog: state.New(),
		logger:  logging.Global(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("monitor")

	engineOpts := []engine.Option{engine.WithLogger(m.logger)}
	if m.tracer != nil {
		engineOpts = append(engineOpts, engine.WithTracer(m.tracer))
	}
	m.replay = engine.New(engineOpts...)
	if m.metrics != nil {
		engineOpts = append(engineOpts, engine.WithMetrics(m.metrics))
	}
	m.engine = engine.New(engineOpts...)

	if m.parser == nil {
		parserOpts := []parser.Option{parser.WithLogger(m.logger)}
		if m.metrics != nil {
			parserOpts = append(parserOpts, parser.WithMetrics(m.metrics))
		}
		m.parser = parser.New(parserOpts...)
	}

	queue, err := buffer.NewRingBuffer(buffer.RingBufferConfig{
		Size: cfg.QueueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event queue: %w", err)
	}
	m.queue = queue

	tailerOpts := []tailer.Option{tailer.WithLogger(m.logger)}
	if m.checkpoints != nil {
		tailerOpts = append(tailerOpts, tailer.WithCheckpoints(m.checkpoints))
	}
	if m.metrics != nil {
		tailerOpts = append(tailerOpts, tailer.WithMetrics(m.metrics))
	}
	if m.tracer != nil {
		tailerOpts = append(tailerOpts, tailer.WithTracer(m.tracer))
	}
	t, err := tailer.New(tailer.Config{
		Dir:          cfg.Dir,
		PollInterval: cfg.PollInterval,
		Resume:       cfg.Resume,
	}, m.sink, tailerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal watcher: %w", err)
	}
	m.tailer = t

	return m, nil
}

// Start begins watching. Any existing backlog has been replayed by the time
// it returns. With a live file longer than the queue, Start returns only as
// the consumer takes records.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info().Str("dir", m.cfg.Dir).Msg("Monitor starting")
	return m.tailer.Start(ctx)
}

// Stop stops the watcher and drops whatever the consumer has not taken yet.
// State is left as it is.
func (m *Monitor) Stop() error {
	m.logger.Info().Msg("Monitor stopping")

	err := m.tailer.Stop(m.cfg.StopTimeout)
	if err != nil && err != tailer.ErrNotStarted {
		m.logger.Warn().Err(err).Msg("Journal watcher did not stop cleanly")
	}

	m.queue.Close()
	if dropped := m.queue.Drain(); dropped > 0 {
		m.logger.Warn().Int("records", dropped).Msg("Dropped unprocessed journal records")
		if m.metrics != nil {
			m.metrics.QueueDropped.Add(float64(dropped))
		}
	}
	m.updateDepth()

	m.logger.Info().Msg("Monitor stopped")
	if err == tailer.ErrNotStarted {
		return nil
	}
	return err
}

// Wake receives after records are queued.
func (m *Monitor) Wake() <-chan struct{} {
	return m.queue.Wake()
}

// Pending returns the number of queued records.
func (m *Monitor) Pending() int {
	return m.queue.Size()
}

// Status returns the watcher health.
func (m *Monitor) Status() tailer.Status {
	return m.tailer.Status()
}

// QueueUtilization returns the queue fill level as a fraction of capacity.
func (m *Monitor) QueueUtilization() float64 {
	return m.queue.Utilization() / 100
}

// State returns the live aggregate. Only the consumer may read it directly.
func (m *Monitor) State() *state.CommanderState {
	return m.state
}

// Snapshot returns a copy of the live aggregate for other readers.
func (m *Monitor) Snapshot() *state.CommanderState {
	return m.state.Snapshot()
}

// GetEntry takes the next queued record, applies it to the live aggregate
// and returns the resulting event. It returns nil once the queue is empty.
// A sentinel record yields the null event. Records replayed after a resume
// are applied silently and never returned.
func (m *Monitor) GetEntry(ctx context.Context) *journal.Event {
	for {
		record, ok := m.queue.TryDequeue()
		if !ok {
			return nil
		}
		m.updateDepth()

		if record.Handoff != nil {
			m.state = record.Handoff
			m.logger.Debug().Str("commander", m.state.Cmdr).Msg("Adopted replayed state")
		}
		if record.Sentinel() {
			return journal.NullEvent()
		}

		ev := m.parser.Parse(record.Data, record.Role)
		ev = m.engine.Apply(ctx, ev, m.state)
		m.commit(record)
		if record.Replayed {
			continue
		}
		return ev
	}
}

// commit checkpoints a live record once it has been applied.
func (m *Monitor) commit(record *buffer.Record) {
	if m.checkpoints == nil || record.Role != buffer.RoleCurrent || record.Path == "" {
		return
	}
	m.checkpoints.UpdatePosition(tailer.RoleCurrent, record.Path, record.Offset, record.Inode)
}

// sink receives records from the watcher goroutine.
func (m *Monitor) sink(ctx context.Context, line tailer.Line) {
	if line.Role == tailer.RoleStored {
		m.replayRecord(ctx, line.Data)
		return
	}
	m.enqueue(ctx, &buffer.Record{
		Data:     line.Data,
		Role:     buffer.RoleCurrent,
		Path:     line.Path,
		Offset:   line.Offset,
		Inode:    line.Inode,
		Replayed: line.Replayed,
	})
}

// replayRecord applies one backlog record to the private aggregate and
// forwards only what the consumer must see.
func (m *Monitor) replayRecord(ctx context.Context, record []byte) {
	ev := m.replay.Apply(ctx, m.parser.Parse(record, tailer.RoleStored), m.backlog)

	switch ev.Kind {
	case journal.KindFileheader:
		m.lastloc = false

	case journal.KindHarnessNewVersion:
		m.enqueue(ctx, &buffer.Record{Data: record, Role: buffer.RoleStored})

	case journal.KindLocation, journal.KindFSDJump:
		m.lastloc = true

	case journal.KindRefreshOver:
		handoff := m.backlog.Snapshot()
		located := m.lastloc
		m.lastloc = false
		if located {
			data, err := StartUp(handoff, m.now())
			if err == nil {
				m.logger.Info().Str("system", handoff.System).Msg("Backlog replayed, sending StartUp")
				m.enqueue(ctx, &buffer.Record{Data: data, Role: buffer.RoleStored, Handoff: handoff})
				return
			}
			m.logger.Error().Err(err).Msg("Failed to build StartUp")
		}
		m.logger.Info().Msg("Backlog replayed without a location")
		m.enqueue(ctx, &buffer.Record{Role: buffer.RoleStored, Handoff: handoff})
	}
}

// enqueue waits for room in the queue. It only fails when the watcher is
// stopping, in which case the record is dropped along with the rest.
func (m *Monitor) enqueue(ctx context.Context, record *buffer.Record) {
	if err := m.queue.Enqueue(ctx, record); err != nil {
		m.logger.Warn().Err(err).Str("role", record.Role).Msg("Journal record not queued, watcher stopping")
		if m.metrics != nil {
			m.metrics.QueueDropped.Inc()
		}
		return
	}
	m.updateDepth()
}

func (m *Monitor) updateDepth() {
	if m.metrics != nil {
		m.metrics.QueueDepth.Set(float64(m.queue.Size()))
	}
}

// StartUp builds the synthetic StartUp record that summarizes where st says
// the commander is.
func StartUp(st *state.CommanderState, now time.Time) ([]byte, error) {
	doc := journal.NewDocument().
		Set("timestamp", journal.FormatTimestamp(now)).
		Set("event", string(journal.KindStartUp)).
		Set("StarSystem", st.System).
		Set("StarPos", st.Coordinates).
		Set("SystemAddress", st.SystemAddress).
		Set("Population", st.Population)
	if st.Planet != "" {
		doc.Set("Body", st.Planet)
	}
	doc.Set("Docked", st.Docked())
	if st.Docked() {
		doc.Set("StationName", st.Station).
			Set("StationType", st.StationType).
			Set("MarketID", st.MarketID)
	}

	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode StartUp: %w", err)
	}
	return data, nil
}
