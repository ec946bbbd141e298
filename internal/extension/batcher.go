package extension

import (
	"context"
	"sync"
	"time"
)

// BatcherConfig configures the batching behavior
type BatcherConfig struct {
	MaxBatchSize  int
	MaxBatchBytes int
	FlushInterval time.Duration
}

// FlushFunc receives a full or timed-out batch.
type FlushFunc func(ctx context.Context, records []*Record) error

// Batcher accumulates records and flushes them in batches
type Batcher struct {
	config   BatcherConfig
	records  []*Record
	size     int
	mu       sync.Mutex
	flushFn  FlushFunc
	onError  func(error)
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewBatcher creates a new batcher. Errors from background flushes go to
// onError, which may be nil.
func NewBatcher(config BatcherConfig, flushFn FlushFunc, onError func(error)) *Batcher {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 100
	}
	if config.MaxBatchBytes <= 0 {
		config.MaxBatchBytes = 5 * 1024 * 1024
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if onError == nil {
		onError = func(error) {}
	}

	b := &Batcher{
		config:  config,
		records: make([]*Record, 0, config.MaxBatchSize),
		flushFn: flushFn,
		onError: onError,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go b.flushLoop()

	return b
}

// Add adds a record to the batch and flushes when the batch is full.
func (b *Batcher) Add(ctx context.Context, record *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, record)
	b.size += len(record.Event)

	if len(b.records) >= b.config.MaxBatchSize || b.size >= b.config.MaxBatchBytes {
		return b.flushLocked(ctx)
	}

	return nil
}

// Flush forces a flush of the current batch
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// flushLocked flushes the current batch (must be called with lock held)
func (b *Batcher) flushLocked(ctx context.Context) error {
	if len(b.records) == 0 {
		return nil
	}

	toFlush := make([]*Record, len(b.records))
	copy(toFlush, b.records)

	b.records = b.records[:0]
	b.size = 0

	// Flush without holding lock
	b.mu.Unlock()
	err := b.flushFn(ctx, toFlush)
	b.mu.Lock()

	return err
}

func (b *Batcher) flushLoop() {
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()
	defer close(b.doneCh)

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(context.Background()); err != nil {
				b.onError(err)
			}
		case <-b.stopCh:
			if err := b.Flush(context.Background()); err != nil {
				b.onError(err)
			}
			return
		}
	}
}

// Stop stops the batcher after a final flush. It is safe to call more than
// once.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
}

// Size returns the current number of records in the batch
func (b *Batcher) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
