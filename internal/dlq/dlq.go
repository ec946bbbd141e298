// Package dlq keeps journal records the parser rejected, so a user can see
// what the game wrote when something goes missing from the commander state.
//
// Entries are appended to a JSON Lines file. The file is only rewritten when
// entries are evicted or cleared.
package dlq

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

var ErrClosed = errors.New("dead letter queue is closed")

// FileName is the name of the persisted queue inside the directory.
const FileName = "rejected.jsonl"

// Config holds configuration for the dead letter queue.
type Config struct {
	Dir string
	// MaxSize is the number of entries kept. The oldest entry is evicted to
	// make room for a new one.
	MaxSize       int64
	MaxAge        time.Duration
	FlushInterval time.Duration
}

// Entry is one rejected record.
type Entry struct {
	Record    string            `json:"record"`
	Role      string            `json:"role"`
	Error     string            `json:"error"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Stats holds queue statistics
type Stats struct {
	Enqueued uint64
	Evicted  uint64
	Expired  uint64
	Size     int
	MaxSize  int64
}

// Queue is a bounded, persisted list of rejected records.
type Queue struct {
	config Config
	path   string
	now    func() time.Time

	mu       sync.Mutex
	entries  []Entry
	unsynced int  // entries at the tail not yet appended to the file
	rewrite  bool // the file holds entries no longer in memory
	closed   bool
	closeCh  chan struct{}
	wg       sync.WaitGroup

	enqueued uint64
	evicted  uint64
	expired  uint64
}

// New opens the queue in cfg.Dir, loading entries kept by an earlier run.
func New(cfg Config) (*Queue, error) {
	if cfg.Dir == "" {
		return nil, errors.New("dead letter queue directory is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10000
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dead letter directory: %w", err)
	}

	q := &Queue{
		config:  cfg,
		path:    filepath.Join(cfg.Dir, FileName),
		now:     time.Now,
		closeCh: make(chan struct{}),
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	q.expire()

	q.wg.Add(1)
	go q.loop()

	return q, nil
}

// Enqueue adds a rejected record.
func (q *Queue) Enqueue(record []byte, role string, err error, metadata map[string]string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	entry := Entry{
		Record:    string(record),
		Role:      role,
		Timestamp: q.now().UTC(),
		Metadata:  metadata,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if int64(len(q.entries)) >= q.config.MaxSize {
		drop := len(q.entries) - int(q.config.MaxSize) + 1
		q.entries = append(q.entries[:0:0], q.entries[drop:]...)
		q.evicted += uint64(drop)
		q.rewrite = true
	}
	q.entries = append(q.entries, entry)
	q.unsynced++
	q.enqueued++
	return nil
}

// GetAll returns a copy of all entries, oldest first.
func (q *Queue) GetAll() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	return append([]Entry(nil), q.entries...), nil
}

// Size returns the number of entries
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear removes every entry, on disk too.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.entries = nil
	q.unsynced = 0
	q.rewrite = true
	return q.flush()
}

// Flush writes entries not yet on disk.
func (q *Queue) Flush() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flush()
}

// Close flushes and stops the background loop.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.closed = true
	close(q.closeCh)
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flush()
}

// Stats returns queue statistics
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Enqueued: q.enqueued,
		Evicted:  q.evicted,
		Expired:  q.expired,
		Size:     len(q.entries),
		MaxSize:  q.config.MaxSize,
	}
}

// flush must be called with the lock held.
func (q *Queue) flush() error {
	if q.rewrite {
		return q.rewriteFile()
	}
	if q.unsynced == 0 {
		return nil
	}

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open dead letter file: %w", err)
	}
	if err := q.write(f, q.entries[len(q.entries)-q.unsynced:]); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close dead letter file: %w", err)
	}
	q.unsynced = 0
	return nil
}

func (q *Queue) rewriteFile() error {
	tmp := q.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := q.write(f, q.entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	q.unsynced = 0
	q.rewrite = false
	return nil
}

func (q *Queue) write(f *os.File, entries []Entry) error {
	w := bufio.NewWriter(f)
	enc := sonic.ConfigStd.NewEncoder(w)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write dead letter file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync dead letter file: %w", err)
	}
	return nil
}

// load reads the file line by line. A torn last line from a crash is
// dropped and the file rewritten on the next flush.
func (q *Queue) load() error {
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open dead letter file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := sonic.Unmarshal(line, &entry); err != nil {
			q.rewrite = true
			continue
		}
		q.entries = append(q.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read dead letter file: %w", err)
	}

	if extra := int64(len(q.entries)) - q.config.MaxSize; extra > 0 {
		q.entries = q.entries[extra:]
		q.evicted += uint64(extra)
		q.rewrite = true
	}
	return nil
}

// expire drops entries older than MaxAge.
func (q *Queue) expire() {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.config.MaxAge)
	keep := q.entries[:0]
	for _, e := range q.entries {
		if e.Timestamp.After(cutoff) {
			keep = append(keep, e)
		}
	}
	if n := len(q.entries) - len(keep); n > 0 {
		q.expired += uint64(n)
		q.rewrite = true
		q.unsynced = min(q.unsynced, len(keep))
	}
	q.entries = keep
}

func (q *Queue) loop() {
	defer q.wg.Done()

	flush := time.NewTicker(q.config.FlushInterval)
	defer flush.Stop()
	cleanup := time.NewTicker(min(q.config.MaxAge, time.Hour))
	defer cleanup.Stop()

	for {
		select {
		case <-flush.C:
			q.mu.Lock()
			_ = q.flush()
			q.mu.Unlock()
		case <-cleanup.C:
			q.expire()
		case <-q.closeCh:
			return
		}
	}
}
