// Package tailer follows the two journal files of a watch directory and hands
// every complete record to a sink.
package tailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/tracing"
)

// File roles.
const (
	RoleCurrent = "current"
	RoleStored  = "stored"
)

// Default file names inside the watch directory.
const (
	DefaultCurrentName = "current.edd"
	DefaultStoredName  = "stored.edd"
)

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("tailer not started")

// Line is one complete record read from a journal file.
type Line struct {
	Role string
	// Data is the record without its line terminator, owned by the sink.
	Data []byte
	Path string
	// Offset is where the record ends, terminator included. Committing it
	// as a checkpoint resumes after this record.
	Offset int64
	Inode  uint64
	// Replayed marks current-file records at or before the resume checkpoint.
	// They were already delivered by an earlier run.
	Replayed bool
}

// Sink receives records in file order. It may block; ctx is cancelled when
// the tailer stops.
type Sink func(ctx context.Context, line Line)

// Config holds tailer configuration
type Config struct {
	Dir          string
	CurrentName  string
	StoredName   string
	PollInterval time.Duration

	// Resume marks current-file records up to the checkpoint as Replayed
	// when the file identity matches. Both files are always read from the
	// start so the state can be rebuilt.
	Resume bool
}

// Status is the health of the watcher as last observed. It is OK only when
// every role and the directory watch are healthy.
type Status struct {
	OK      bool
	Message string
	Since   time.Time
	// Failures maps a failing role (or "watch") to its error.
	Failures map[string]string
}

type failure struct {
	msg   string
	since time.Time
}

// Tailer watches the journal directory with fsnotify and a polling ticker.
// Either trigger reads whatever was appended since the role's offset.
type Tailer struct {
	cfg           Config
	sink          Sink
	checkpointMgr *checkpoint.Manager
	logger        *logging.Logger
	metrics       *metrics.Collector
	tracer        trace.Tracer

	watcher  *fsnotify.Watcher
	watching bool

	mu        sync.Mutex
	files     map[string]*tailedFile
	failures  map[string]failure
	healthyAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

type tailedFile struct {
	role    string
	path    string
	file    *os.File
	offset  int64
	inode   uint64
	partial []byte

	// resumeAt is the checkpointed offset of an earlier run.
	resumeAt int64
}

// consumed is the offset of the end of the last complete record.
func (tf *tailedFile) consumed() int64 {
	return tf.offset - int64(len(tf.partial))
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithCheckpoints persists offsets through mgr.
func WithCheckpoints(mgr *checkpoint.Manager) Option {
	return func(t *Tailer) { t.checkpointMgr = mgr }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(t *Tailer) { t.logger = logger.WithComponent("tailer") }
}

// WithMetrics records reads and watcher health in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(t *Tailer) { t.metrics = collector }
}

// WithTracer traces every read.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Tailer) { t.tracer = tracer }
}

// New creates a new Tailer for cfg.Dir.
func New(cfg Config, sink Sink, opts ...Option) (*Tailer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if cfg.CurrentName == "" {
		cfg.CurrentName = DefaultCurrentName
	}
	if cfg.StoredName == "" {
		cfg.StoredName = DefaultStoredName
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	t := &Tailer{
		cfg:    cfg,
		sink:   sink,
		logger: logging.Global().WithComponent("tailer"),
		tracer: noop.NewTracerProvider().Tracer("tailer"),
		files:     make(map[string]*tailedFile),
		failures:  make(map[string]failure),
		healthyAt: time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// RoleOf returns the role of a journal path: "current" for the live file,
// "stored" for the backlog, "" for anything else.
func RoleOf(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.Contains(base, RoleCurrent):
		return RoleCurrent
	case strings.Contains(base, RoleStored):
		return RoleStored
	}
	return ""
}

func (t *Tailer) pathOf(role string) string {
	if role == RoleStored {
		return filepath.Join(t.cfg.Dir, t.cfg.StoredName)
	}
	return filepath.Join(t.cfg.Dir, t.cfg.CurrentName)
}

// Start drains an existing stored file completely, then the current file,
// and only then begins watching. It returns once that first pass is done,
// so a sink that blocks needs its consumer running before Start is called.
// Failures are reported through Status and retried, never returned.
func (t *Tailer) Start(ctx context.Context) error {
	if t.cancel != nil {
		return fmt.Errorf("tailer already started")
	}

	if t.checkpointMgr != nil {
		if err := t.checkpointMgr.Load(); err != nil {
			t.logger.Warn().Err(err).Msg("Ignoring unreadable checkpoint")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	t.poll(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warn().Err(err).Msg("File notification unavailable, polling only")
	} else {
		t.watcher = watcher
		t.addWatch()
	}

	go t.loop(ctx)

	t.logger.Info().
		Str("dir", t.cfg.Dir).
		Dur("poll_interval", t.cfg.PollInterval).
		Bool("notify", t.watching).
		Msg("Watching journal directory")

	return nil
}

// Stop stops watching, waiting at most timeout for the loop to exit, then
// closes the files. Offsets are committed by whoever consumes the records.
func (t *Tailer) Stop(timeout time.Duration) error {
	if t.cancel == nil {
		return ErrNotStarted
	}
	t.cancel()
	if t.watcher != nil {
		t.watcher.Close()
	}

	var err error
	select {
	case <-t.done:
	case <-time.After(timeout):
		err = fmt.Errorf("watcher did not stop within %s", timeout)
		t.logger.Warn().Dur("timeout", timeout).Msg("Watcher did not stop in time")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for role, tf := range t.files {
		tf.file.Close()
		delete(t.files, role)
	}

	return err
}

// Status returns the watcher health.
func (t *Tailer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.failures) == 0 {
		return Status{OK: true, Since: t.healthyAt}
	}

	reasons := make([]string, 0, len(t.failures))
	for reason := range t.failures {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	st := Status{Failures: make(map[string]string, len(reasons))}
	msgs := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		f := t.failures[reason]
		st.Failures[reason] = f.msg
		msgs = append(msgs, reason+": "+f.msg)
		if st.Since.IsZero() || f.since.Before(st.Since) {
			st.Since = f.since
		}
	}
	st.Message = strings.Join(msgs, "; ")
	return st
}

// Offset returns the consumed offset of a role, 0 when the file is not open.
func (t *Tailer) Offset(role string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tf, ok := t.files[role]; ok {
		return tf.consumed()
	}
	return 0
}

func (t *Tailer) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if t.watcher != nil {
		events = t.watcher.Events
		errs = t.watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if t.watcher != nil && !t.watching {
				t.addWatch()
			}
			t.poll(ctx)

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			t.handleEvent(ctx, event)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.logger.Warn().Err(err).Msg("File watcher error, polling continues")
			if t.metrics != nil {
				t.metrics.WatcherErrors.WithLabelValues("notify").Inc()
			}
		}
	}
}

// handleEvent reads the file an fsnotify event names.
func (t *Tailer) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	switch filepath.Base(event.Name) {
	case t.cfg.StoredName:
		t.readRole(ctx, RoleStored)
	case t.cfg.CurrentName:
		t.readRole(ctx, RoleCurrent)
	}
}

func (t *Tailer) addWatch() {
	if err := t.watcher.Add(t.cfg.Dir); err != nil {
		t.fail("watch", fmt.Errorf("failed to watch %s: %w", t.cfg.Dir, err))
		return
	}
	t.watching = true
	t.ok("watch")
}

// poll reads both roles, stored first.
func (t *Tailer) poll(ctx context.Context) {
	t.readRole(ctx, RoleStored)
	t.readRole(ctx, RoleCurrent)
}

func (t *Tailer) readRole(ctx context.Context, role string) {
	if err := t.read(ctx, role); err != nil {
		t.fail(role, err)
		return
	}
	t.ok(role)
}

// read hands every complete record appended to the role's file since the
// last read to the sink. The lock is only held while reading the file.
func (t *Tailer) read(ctx context.Context, role string) error {
	lines, err := t.collect(ctx, role)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if ctx.Err() != nil {
			return nil
		}
		t.sink(ctx, line)
	}
	return nil
}

// collect reads the role's new bytes and splits them into complete records.
func (t *Tailer) collect(ctx context.Context, role string) ([]Line, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := t.pathOf(role)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if _, dirErr := os.Stat(t.cfg.Dir); dirErr != nil {
				return nil, fmt.Errorf("watch directory unavailable: %w", dirErr)
			}
			t.forget(role)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	tf, err := t.open(role, path, fi)
	if err != nil {
		return nil, err
	}
	if fi.Size() == tf.offset {
		return nil, nil
	}

	_, span := tracing.TraceRead(ctx, t.tracer, role)
	defer span.End()

	chunk := make([]byte, fi.Size()-tf.offset)
	n, err := tf.file.ReadAt(chunk, tf.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	chunk = chunk[:n]

	base := tf.consumed()
	tf.offset += int64(n)

	data := chunk
	if len(tf.partial) > 0 {
		data = append(tf.partial, chunk...)
	}

	var lines []Line
	pos := base
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		pos += int64(i + 1)
		line := bytes.TrimSpace(data[:i])
		data = data[i+1:]
		if len(line) == 0 {
			continue
		}
		record := make([]byte, len(line))
		copy(record, line)
		lines = append(lines, Line{
			Role:     role,
			Data:     record,
			Path:     path,
			Offset:   pos,
			Inode:    tf.inode,
			Replayed: pos <= tf.resumeAt,
		})
	}
	tf.partial = append(tf.partial[:0:0], data...)

	if t.metrics != nil {
		t.metrics.RecordsRead.WithLabelValues(role).Add(float64(len(lines)))
		t.metrics.BytesRead.WithLabelValues(role).Add(float64(n))
	}
	return lines, nil
}

// open returns the open file for role, reopening it when the file identity
// changed or it shrank below the offset.
func (t *Tailer) open(role, path string, fi os.FileInfo) (*tailedFile, error) {
	inode := getInode(fi)
	tf, ok := t.files[role]
	if ok && tf.inode == inode && fi.Size() >= tf.offset {
		return tf, nil
	}

	first := !ok
	if ok {
		t.logger.Info().
			Str("role", role).
			Uint64("inode", inode).
			Int64("size", fi.Size()).
			Int64("offset", tf.offset).
			Msg("Journal file replaced, reading from the start")
		tf.file.Close()
		delete(t.files, role)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	tf = &tailedFile{role: role, path: path, file: file, inode: inode}
	if first && role == RoleCurrent && t.cfg.Resume && t.checkpointMgr != nil {
		if pos, ok := t.checkpointMgr.GetPosition(role); ok && pos.Inode == inode && pos.Offset <= fi.Size() {
			tf.resumeAt = pos.Offset
			t.logger.Info().Str("path", path).Int64("offset", pos.Offset).Msg("Resuming after checkpoint")
		}
	}
	t.files[role] = tf
	return tf, nil
}

// forget drops a role whose file disappeared.
func (t *Tailer) forget(role string) {
	if tf, ok := t.files[role]; ok {
		tf.file.Close()
		delete(t.files, role)
	}
	if t.checkpointMgr != nil {
		t.checkpointMgr.Forget(role)
	}
}

// fail records a failure for reason, logging only when it is new or changed.
func (t *Tailer) fail(reason string, err error) {
	msg := err.Error()

	t.mu.Lock()
	prev, failing := t.failures[reason]
	changed := !failing || prev.msg != msg
	if changed {
		since := time.Now()
		if failing {
			since = prev.since
		}
		t.failures[reason] = failure{msg: msg, since: since}
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.WatcherErrors.WithLabelValues(reason).Inc()
		if reason == RoleCurrent || reason == RoleStored {
			t.metrics.WatcherStatus.WithLabelValues(reason).Set(0)
		}
	}
	if changed {
		t.logger.Error().Err(err).Str("reason", reason).Msg("Journal watcher failure")
	}
}

// ok clears a failure for reason.
func (t *Tailer) ok(reason string) {
	if t.metrics != nil && (reason == RoleCurrent || reason == RoleStored) {
		t.metrics.WatcherStatus.WithLabelValues(reason).Set(1)
	}

	t.mu.Lock()
	_, failing := t.failures[reason]
	if failing {
		delete(t.failures, reason)
		if len(t.failures) == 0 {
			t.healthyAt = time.Now()
		}
	}
	t.mu.Unlock()

	if failing {
		t.logger.Info().Str("reason", reason).Msg("Journal watcher recovered")
	}
}

// getInode extracts inode from FileInfo
func getInode(fi os.FileInfo) uint64 {
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
