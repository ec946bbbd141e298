package extension

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testRecord(kind string) *Record {
	return &Record{Commander: "Jameson", Kind: kind, Event: []byte(`{"event":"` + kind + `"}`)}
}

func TestBatcherBasic(t *testing.T) {
	var flushedCount int64
	flushFn := func(ctx context.Context, records []*Record) error {
		atomic.AddInt64(&flushedCount, int64(len(records)))
		return nil
	}

	batcher := NewBatcher(BatcherConfig{
		MaxBatchSize:  5,
		MaxBatchBytes: 10000,
		FlushInterval: 50 * time.Millisecond,
	}, flushFn, nil)

	for i := 0; i < 12; i++ {
		if err := batcher.Add(context.Background(), testRecord("FSDJump")); err != nil {
			t.Fatalf("failed to add record: %v", err)
		}
	}

	// 2 batches of 5 on size, the remaining 2 on Stop at the latest
	batcher.Stop()

	if count := atomic.LoadInt64(&flushedCount); count != 12 {
		t.Errorf("expected 12 records flushed, got %d", count)
	}
}

func TestBatcherFlushOnSize(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	flushFn := func(ctx context.Context, records []*Record) error {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(records))
		return nil
	}

	batcher := NewBatcher(BatcherConfig{MaxBatchSize: 5, FlushInterval: time.Hour}, flushFn, nil)
	defer batcher.Stop()

	for i := 0; i < 5; i++ {
		if err := batcher.Add(context.Background(), testRecord("Docked")); err != nil {
			t.Fatalf("failed to add record: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sizes) != 1 || sizes[0] != 5 {
		t.Errorf("flushed batches = %v, want [5]", sizes)
	}
}

func TestBatcherFlushOnBytes(t *testing.T) {
	var flushes int64
	flushFn := func(ctx context.Context, records []*Record) error {
		atomic.AddInt64(&flushes, 1)
		return nil
	}

	batcher := NewBatcher(BatcherConfig{MaxBatchSize: 100, MaxBatchBytes: 10, FlushInterval: time.Hour}, flushFn, nil)
	defer batcher.Stop()

	if err := batcher.Add(context.Background(), testRecord("Undocked")); err != nil {
		t.Fatalf("failed to add record: %v", err)
	}

	if got := atomic.LoadInt64(&flushes); got != 1 {
		t.Errorf("flushes = %d, want 1", got)
	}
}

func TestBatcherFlushOnInterval(t *testing.T) {
	flushed := make(chan int, 1)
	flushFn := func(ctx context.Context, records []*Record) error {
		flushed <- len(records)
		return nil
	}

	batcher := NewBatcher(BatcherConfig{MaxBatchSize: 100, FlushInterval: 20 * time.Millisecond}, flushFn, nil)
	defer batcher.Stop()

	for i := 0; i < 3; i++ {
		if err := batcher.Add(context.Background(), testRecord("Scan")); err != nil {
			t.Fatalf("failed to add record: %v", err)
		}
	}

	select {
	case n := <-flushed:
		if n != 3 {
			t.Errorf("expected 3 records flushed, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("interval flush did not happen")
	}
}

func TestBatcherBackgroundErrorsReported(t *testing.T) {
	errFlush := errors.New("cluster unavailable")
	reported := make(chan error, 1)

	batcher := NewBatcher(BatcherConfig{MaxBatchSize: 100, FlushInterval: time.Hour},
		func(ctx context.Context, records []*Record) error { return errFlush },
		func(err error) { reported <- err })

	if err := batcher.Add(context.Background(), testRecord("Died")); err != nil {
		t.Fatalf("failed to add record: %v", err)
	}
	batcher.Stop()

	select {
	case err := <-reported:
		if !errors.Is(err, errFlush) {
			t.Errorf("reported error = %v, want %v", err, errFlush)
		}
	default:
		t.Fatal("final flush error was not reported")
	}
}

func TestBatcherManualFlushAndSize(t *testing.T) {
	var flushedCount int64
	flushFn := func(ctx context.Context, records []*Record) error {
		atomic.AddInt64(&flushedCount, int64(len(records)))
		return nil
	}

	batcher := NewBatcher(BatcherConfig{MaxBatchSize: 100, FlushInterval: time.Hour}, flushFn, nil)
	defer batcher.Stop()

	for i := 0; i < 4; i++ {
		_ = batcher.Add(context.Background(), testRecord("Location"))
	}
	if batcher.Size() != 4 {
		t.Errorf("Size() = %d, want 4", batcher.Size())
	}

	if err := batcher.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if batcher.Size() != 0 {
		t.Errorf("Size() after flush = %d, want 0", batcher.Size())
	}
	if got := atomic.LoadInt64(&flushedCount); got != 4 {
		t.Errorf("flushed = %d, want 4", got)
	}
}

func TestBatcherStopIsIdempotent(t *testing.T) {
	batcher := NewBatcher(BatcherConfig{}, func(ctx context.Context, records []*Record) error { return nil }, nil)
	batcher.Stop()
	batcher.Stop()
}
