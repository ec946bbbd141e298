package buffer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
)

func record(i int) *Record {
	return &Record{
		Data: []byte(fmt.Sprintf(`{"timestamp":"2021-05-20T10:00:00Z","event":"Music","n":%d}`, i)),
		Role: RoleCurrent,
	}
}

func TestNewRingBuffer(t *testing.T) {
	tests := []struct {
		name     string
		config   RingBufferConfig
		wantSize uint64
	}{
		{
			name:     "default size",
			config:   RingBufferConfig{},
			wantSize: 1024,
		},
		{
			name:     "custom size rounded up to power of 2",
			config:   RingBufferConfig{Size: 1000},
			wantSize: 1024,
		},
		{
			name:     "power of 2 size",
			config:   RingBufferConfig{Size: 2048},
			wantSize: 2048,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb, err := NewRingBuffer(tt.config)
			if err != nil {
				t.Fatalf("NewRingBuffer() error = %v", err)
			}
			if rb.size != tt.wantSize {
				t.Errorf("size = %d, want %d", rb.size, tt.wantSize)
			}
		})
	}
}

func TestRingBuffer_EnqueueDequeue(t *testing.T) {
	rb, err := NewRingBuffer(RingBufferConfig{Size: 10})
	if err != nil {
		t.Fatalf("NewRingBuffer() error = %v", err)
	}
	defer rb.Close()

	ctx := context.Background()

	rec := record(1)
	if err := rb.Enqueue(ctx, rec); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	dequeued, err := rb.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}

	if string(dequeued.Data) != string(rec.Data) {
		t.Errorf("Dequeued data = %s, want %s", dequeued.Data, rec.Data)
	}

	if !rb.Empty() {
		t.Errorf("Buffer should be empty")
	}
}

func TestRingBuffer_FIFO(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 64})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := rb.Enqueue(ctx, record(i)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	for i := 0; i < 50; i++ {
		got, ok := rb.TryDequeue()
		if !ok {
			t.Fatalf("TryDequeue() empty at %d", i)
		}
		if string(got.Data) != string(record(i).Data) {
			t.Fatalf("record %d out of order: %s", i, got.Data)
		}
	}

	if _, ok := rb.TryDequeue(); ok {
		t.Error("TryDequeue() on empty buffer returned a record")
	}
}

func TestRingBuffer_Sentinel(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 4})
	ctx := context.Background()

	handoff := state.New()
	handoff.Cmdr = "Foo"
	if err := rb.Enqueue(ctx, &Record{Role: RoleStored, Handoff: handoff}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got, _ := rb.TryDequeue()
	if !got.Sentinel() {
		t.Error("record without data should be a sentinel")
	}
	if got.Handoff != handoff {
		t.Error("handoff aggregate was not carried")
	}
	if record(0).Sentinel() {
		t.Error("record with data is not a sentinel")
	}
}

func TestRingBuffer_Wake(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 8})
	ctx := context.Background()

	select {
	case <-rb.Wake():
		t.Fatal("wake signalled before any enqueue")
	default:
	}

	for i := 0; i < 3; i++ {
		_ = rb.Enqueue(ctx, record(i))
	}

	select {
	case <-rb.Wake():
	case <-time.After(time.Second):
		t.Fatal("wake not signalled after enqueue")
	}

	// Three enqueues collapse into one pending signal.
	select {
	case <-rb.Wake():
		t.Fatal("wake holds more than one signal")
	default:
	}
}

func TestRingBuffer_Drain(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 8})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = rb.Enqueue(ctx, record(i))
	}

	if n := rb.Drain(); n != 5 {
		t.Errorf("Drain() = %d, want 5", n)
	}
	if !rb.Empty() {
		t.Error("buffer should be empty after drain")
	}
	if rb.Metrics().Dropped != 5 {
		t.Errorf("Dropped = %d, want 5", rb.Metrics().Dropped)
	}
}

func TestRingBuffer_BlocksWhenFull(t *testing.T) {
	rb, err := NewRingBuffer(RingBufferConfig{
		Size:         4,
		BlockTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRingBuffer() error = %v", err)
	}
	defer rb.Close()

	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := rb.Enqueue(ctx, record(i)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	if !rb.Full() {
		t.Errorf("Buffer should be full")
	}

	err = rb.Enqueue(ctx, record(5))
	if err != ErrBufferFull {
		t.Errorf("Expected ErrBufferFull, got %v", err)
	}
}

func TestRingBuffer_BlockingUnblocksOnDequeue(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 2, BlockTimeout: 2 * time.Second})
	ctx := context.Background()

	_ = rb.Enqueue(ctx, record(0))
	_ = rb.Enqueue(ctx, record(1))

	done := make(chan error, 1)
	go func() {
		done <- rb.Enqueue(ctx, record(2))
	}()

	time.Sleep(20 * time.Millisecond)
	if _, ok := rb.TryDequeue(); !ok {
		t.Fatal("TryDequeue() failed on full buffer")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked Enqueue() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue() did not resume")
	}
}

func TestRingBuffer_BlocksWithoutTimeoutUntilCancelled(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 2})
	defer rb.Close()

	_ = rb.Enqueue(context.Background(), record(0))
	_ = rb.Enqueue(context.Background(), record(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rb.Enqueue(ctx, record(2)); err != context.DeadlineExceeded {
		t.Errorf("Enqueue() on full buffer = %v, want context.DeadlineExceeded", err)
	}
	if rb.Metrics().Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", rb.Metrics().Dropped)
	}
}

func TestRingBuffer_CloseReleasesBlockedEnqueue(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 1})
	_ = rb.Enqueue(context.Background(), record(0))

	done := make(chan error, 1)
	go func() {
		done <- rb.Enqueue(context.Background(), record(1))
	}()

	time.Sleep(20 * time.Millisecond)
	rb.Close()

	select {
	case err := <-done:
		if err != ErrBufferClosed {
			t.Errorf("Enqueue() after Close = %v, want ErrBufferClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue() not released by Close")
	}
}

func TestRingBuffer_OverCapacityKeepsOrder(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 4})
	defer rb.Close()

	const total = 100
	go func() {
		for i := 0; i < total; i++ {
			if err := rb.Enqueue(context.Background(), record(i)); err != nil {
				t.Errorf("Enqueue(%d) error = %v", i, err)
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < total; i++ {
		got, err := rb.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() after %d records error = %v", i, err)
		}
		if string(got.Data) != string(record(i).Data) {
			t.Fatalf("record %d = %s, want %s", i, got.Data, record(i).Data)
		}
	}
	if rb.Metrics().Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", rb.Metrics().Dropped)
	}
}

func TestRingBuffer_ProducerConsumer(t *testing.T) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 16, BlockTimeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const total = 500
	go func() {
		for i := 0; i < total; i++ {
			if err := rb.Enqueue(ctx, record(i)); err != nil {
				t.Errorf("Enqueue() error = %v", err)
				return
			}
		}
	}()

	for i := 0; i < total; i++ {
		got, err := rb.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if string(got.Data) != string(record(i).Data) {
			t.Fatalf("record %d out of order", i)
		}
	}
}

func TestRingBuffer_Metrics(t *testing.T) {
	rb, err := NewRingBuffer(RingBufferConfig{Size: 10})
	if err != nil {
		t.Fatalf("NewRingBuffer() error = %v", err)
	}
	defer rb.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := rb.Enqueue(ctx, record(i)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	metrics := rb.Metrics()

	if metrics.Enqueued != 5 {
		t.Errorf("Enqueued = %d, want 5", metrics.Enqueued)
	}

	if metrics.CurrentSize != 5 {
		t.Errorf("CurrentSize = %d, want 5", metrics.CurrentSize)
	}

	if metrics.Utilization != 31.25 { // 5/16 * 100 (size is rounded to 16)
		t.Errorf("Utilization = %f, want 31.25", metrics.Utilization)
	}

	for i := 0; i < 2; i++ {
		if _, err := rb.Dequeue(ctx); err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
	}

	metrics = rb.Metrics()

	if metrics.Dequeued != 2 {
		t.Errorf("Dequeued = %d, want 2", metrics.Dequeued)
	}

	if metrics.CurrentSize != 3 {
		t.Errorf("CurrentSize = %d, want 3", metrics.CurrentSize)
	}
}

func TestRingBuffer_Close(t *testing.T) {
	rb, err := NewRingBuffer(RingBufferConfig{Size: 10})
	if err != nil {
		t.Fatalf("NewRingBuffer() error = %v", err)
	}

	ctx := context.Background()
	_ = rb.Enqueue(ctx, record(0))

	if err := rb.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err = rb.Enqueue(ctx, record(1))
	if err != ErrBufferClosed {
		t.Errorf("Expected ErrBufferClosed, got %v", err)
	}

	// Queued records survive the close.
	if _, err := rb.Dequeue(ctx); err != nil {
		t.Errorf("Dequeue() after close error = %v", err)
	}
	if _, err := rb.Dequeue(ctx); err != ErrBufferClosed {
		t.Errorf("Expected ErrBufferClosed on empty closed buffer, got %v", err)
	}

	err = rb.Close()
	if err != ErrBufferClosed {
		t.Errorf("Expected ErrBufferClosed on second close, got %v", err)
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		input uint64
		want  uint64
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{1000, 1024},
		{1024, 1024},
		{1025, 2048},
	}

	for _, tt := range tests {
		got := nextPowerOfTwo(tt.input)
		if got != tt.want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func BenchmarkRingBuffer_Enqueue(b *testing.B) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 10000})
	defer rb.Close()

	ctx := context.Background()
	rec := record(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rb.Enqueue(ctx, rec)
		if rb.Full() {
			rb.Drain()
		}
	}
}

func BenchmarkRingBuffer_EnqueueDequeue(b *testing.B) {
	rb, _ := NewRingBuffer(RingBufferConfig{Size: 1024})
	defer rb.Close()

	ctx := context.Background()
	rec := record(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rb.Enqueue(ctx, rec)
		_, _ = rb.TryDequeue()
	}
}
