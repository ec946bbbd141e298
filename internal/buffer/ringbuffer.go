package buffer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

var (
	ErrBufferFull   = errors.New("buffer is full")
	ErrBufferClosed = errors.New("buffer is closed")
)

// Role names the journal file a record was read from.
const (
	RoleCurrent = "current"
	RoleStored  = "stored"
)

// Record is one queued journal line. A record with nil Data is the sentinel
// that only hands off an aggregate.
type Record struct {
	Data []byte
	Role string

	// Handoff, when set, replaces the consumer's live aggregate before Data
	// is applied.
	Handoff *state.CommanderState

	// Position of a current-file record, committed once it is applied.
	Path   string
	Offset int64
	Inode  uint64

	// Replayed records are applied to the state but not surfaced.
	Replayed bool
}

// Sentinel reports whether the record carries no journal line.
func (r *Record) Sentinel() bool {
	return r == nil || r.Data == nil
}

// RingBufferConfig holds configuration for the ring buffer
type RingBufferConfig struct {
	Size int
	// BlockTimeout bounds how long Enqueue waits on a full buffer. Zero waits
	// until the context is done or the buffer is closed.
	BlockTimeout time.Duration
}

// RingBuffer is a bounded FIFO of journal records between the watcher and
// the consumer. A full buffer blocks the producer; records are never dropped
// while it is open.
type RingBuffer struct {
	buffer   []*Record
	size     uint64
	mask     uint64
	writePos uint64
	readPos  uint64

	config RingBufferConfig

	// Metrics
	enqueued uint64
	dequeued uint64
	dropped  uint64

	// Control
	closed   uint32
	notEmpty chan struct{}
	notFull  chan struct{}
	wake     chan struct{}
	mu       sync.Mutex
}

// NewRingBuffer creates a new ring buffer with the given configuration
func NewRingBuffer(config RingBufferConfig) (*RingBuffer, error) {
	if config.Size <= 0 {
		config.Size = 1024
	}

	// Ensure size is power of 2 for efficient masking
	size := nextPowerOfTwo(uint64(config.Size))

	rb := &RingBuffer{
		buffer:   make([]*Record, size),
		size:     size,
		mask:     size - 1,
		config:   config,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
	}

	return rb, nil
}

// Enqueue adds a record to the buffer, waiting while it is full.
func (rb *RingBuffer) Enqueue(ctx context.Context, record *Record) error {
	var timeout <-chan time.Time
	if rb.config.BlockTimeout > 0 {
		timer := time.NewTimer(rb.config.BlockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		if atomic.LoadUint32(&rb.closed) == 1 {
			return ErrBufferClosed
		}

		rb.mu.Lock()
		if rb.writePos-rb.readPos < rb.size {
			rb.put(record)
			rb.mu.Unlock()
			rb.signal()
			return nil
		}
		rb.mu.Unlock()

		select {
		case <-rb.notFull:
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrBufferFull
		}
	}
}

// put stores record at the write position (must be called with lock held)
func (rb *RingBuffer) put(record *Record) {
	rb.buffer[rb.writePos&rb.mask] = record
	atomic.AddUint64(&rb.writePos, 1)
	atomic.AddUint64(&rb.enqueued, 1)
}

// take removes the record at the read position (must be called with lock held)
func (rb *RingBuffer) take() (*Record, bool) {
	if rb.readPos >= rb.writePos {
		return nil, false
	}
	record := rb.buffer[rb.readPos&rb.mask]
	rb.buffer[rb.readPos&rb.mask] = nil // Clear reference for GC
	atomic.AddUint64(&rb.readPos, 1)
	return record, true
}

// signal wakes a blocked Dequeue and the Wake channel.
func (rb *RingBuffer) signal() {
	select {
	case rb.notEmpty <- struct{}{}:
	default:
	}
	select {
	case rb.wake <- struct{}{}:
	default:
	}
}

// Wake returns a channel that receives after records are enqueued. It holds
// at most one pending signal, so a receiver should drain until empty.
func (rb *RingBuffer) Wake() <-chan struct{} {
	return rb.wake
}

// Dequeue removes and returns the oldest record, waiting for one if empty
func (rb *RingBuffer) Dequeue(ctx context.Context) (*Record, error) {
	for {
		if record, ok := rb.TryDequeue(); ok {
			return record, nil
		}
		if atomic.LoadUint32(&rb.closed) == 1 {
			return nil, ErrBufferClosed
		}

		select {
		case <-rb.notEmpty:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryDequeue removes and returns the oldest record without blocking
func (rb *RingBuffer) TryDequeue() (*Record, bool) {
	rb.mu.Lock()
	record, ok := rb.take()
	rb.mu.Unlock()
	if !ok {
		return nil, false
	}

	atomic.AddUint64(&rb.dequeued, 1)

	// Signal that buffer is not full
	select {
	case rb.notFull <- struct{}{}:
	default:
	}

	return record, true
}

// Drain discards everything queued and returns how many records were dropped.
func (rb *RingBuffer) Drain() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := 0
	for {
		if _, ok := rb.take(); !ok {
			break
		}
		n++
	}
	atomic.AddUint64(&rb.dropped, uint64(n))
	return n
}

// Empty checks if buffer is empty
func (rb *RingBuffer) Empty() bool {
	readPos := atomic.LoadUint64(&rb.readPos)
	writePos := atomic.LoadUint64(&rb.writePos)
	return readPos >= writePos
}

// Full checks if buffer is full
func (rb *RingBuffer) Full() bool {
	readPos := atomic.LoadUint64(&rb.readPos)
	writePos := atomic.LoadUint64(&rb.writePos)
	return writePos-readPos >= rb.size
}

// Size returns the current number of records in the buffer
func (rb *RingBuffer) Size() int {
	readPos := atomic.LoadUint64(&rb.readPos)
	writePos := atomic.LoadUint64(&rb.writePos)
	if readPos >= writePos {
		return 0
	}
	return int(writePos - readPos)
}

// Capacity returns the maximum capacity of the buffer
func (rb *RingBuffer) Capacity() int {
	return int(rb.size)
}

// Utilization returns the buffer utilization percentage (0-100)
func (rb *RingBuffer) Utilization() float64 {
	size := float64(rb.Size())
	capacity := float64(rb.Capacity())
	if capacity == 0 {
		return 0
	}
	return (size / capacity) * 100.0
}

// Metrics returns buffer metrics
func (rb *RingBuffer) Metrics() BufferMetrics {
	return BufferMetrics{
		Enqueued:    atomic.LoadUint64(&rb.enqueued),
		Dequeued:    atomic.LoadUint64(&rb.dequeued),
		Dropped:     atomic.LoadUint64(&rb.dropped),
		CurrentSize: rb.Size(),
		Capacity:    rb.Capacity(),
		Utilization: rb.Utilization(),
	}
}

// Close stops further enqueues. Records already queued can still be dequeued.
func (rb *RingBuffer) Close() error {
	if !atomic.CompareAndSwapUint32(&rb.closed, 0, 1) {
		return ErrBufferClosed
	}

	// Wake any blocked Dequeue or Enqueue so it observes the close.
	select {
	case rb.notEmpty <- struct{}{}:
	default:
	}
	select {
	case rb.notFull <- struct{}{}:
	default:
	}

	return nil
}

// BufferMetrics holds buffer statistics
type BufferMetrics struct {
	Enqueued    uint64
	Dequeued    uint64
	Dropped     uint64
	CurrentSize int
	Capacity    int
	Utilization float64
}

// nextPowerOfTwo returns the next power of 2 greater than or equal to n
func nextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
