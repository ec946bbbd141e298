// Command journalgen writes synthetic journal sessions, either to a journal
// directory for edjournal watch to pick up or straight through the
// parse/queue/apply pipeline to measure its throughput.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/buffer"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/engine"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/parser"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/state"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/tailer"
)

var (
	mode           = flag.String("mode", "file", "Where records go (file, pipeline)")
	dir            = flag.String("dir", ".", "Journal directory for file mode")
	targetRate     = flag.Int("rate", 1000, "Target records per second")
	duration       = flag.Int("duration", 60, "Run time in seconds")
	workers        = flag.Int("workers", 4, "Number of generator goroutines in pipeline mode")
	bufferSize     = flag.Int("buffer", 65536, "Queue size in pipeline mode")
	malformed      = flag.Float64("malformed", 0, "Fraction of records that are not valid JSON")
	exit           = flag.Bool("exit", false, "Finish the file with an ExitProgram record")
	reportInterval = flag.Int("interval", 5, "Report interval in seconds")
)

// Stats tracks generated and processed records.
type Stats struct {
	generated uint64
	written   uint64
	applied   uint64
	nulls     uint64
	dropped   uint64
	startTime time.Time
}

func (s *Stats) Report() {
	elapsed := time.Since(s.startTime).Seconds()
	generated := atomic.LoadUint64(&s.generated)
	written := atomic.LoadUint64(&s.written)
	applied := atomic.LoadUint64(&s.applied)
	nulls := atomic.LoadUint64(&s.nulls)
	dropped := atomic.LoadUint64(&s.dropped)

	fmt.Printf("\n=== Journal Generator ===\n")
	fmt.Printf("Duration: %.2f seconds\n", elapsed)
	fmt.Printf("Records Generated: %d (%.0f/sec)\n", generated, float64(generated)/elapsed)
	if *mode == "file" {
		fmt.Printf("Records Written: %d\n", written)
	} else {
		fmt.Printf("Events Applied: %d (%.0f/sec)\n", applied, float64(applied)/elapsed)
		fmt.Printf("Null Events: %d\n", nulls)
		fmt.Printf("Records Dropped: %d\n", dropped)
	}
	fmt.Printf("=========================\n\n")
}

func main() {
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  "info",
		Format: "console",
	})

	fmt.Printf("Mode: %s\n", *mode)
	fmt.Printf("Target Rate: %d records/sec\n", *targetRate)
	fmt.Printf("Duration: %d seconds\n", *duration)
	fmt.Printf("Malformed: %.1f%%\n\n", *malformed*100)

	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *logging.Logger) error {
	if *targetRate <= 0 || *workers <= 0 {
		return fmt.Errorf("rate and workers must be positive")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, stop := context.WithTimeout(ctx, time.Duration(*duration)*time.Second)
	defer stop()

	stats := &Stats{startTime: time.Now()}
	go func() {
		ticker := time.NewTicker(time.Duration(*reportInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.Report()
			}
		}
	}()

	var err error
	switch *mode {
	case "file":
		err = writeFile(ctx, logger, stats)
	case "pipeline":
		err = runPipeline(ctx, logger, stats)
	default:
		return fmt.Errorf("unsupported mode: %s", *mode)
	}

	stats.Report()
	return err
}

// writeFile appends one session to the current journal file at the target
// rate.
func writeFile(ctx context.Context, logger *logging.Logger, stats *Stats) error {
	path := filepath.Join(*dir, tailer.DefaultCurrentName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()
	logger.Info().Str("path", path).Msg("Writing journal")

	w := bufio.NewWriter(f)
	gen := newGenerator(rand.New(rand.NewSource(time.Now().UnixNano())), *malformed)
	ticker := time.NewTicker(time.Second / time.Duration(*targetRate))
	defer ticker.Stop()

	for _, line := range gen.header() {
		if err := writeLine(w, line, stats); err != nil {
			return err
		}
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if err := writeLine(w, gen.next(), stats); err != nil {
				return err
			}
		}
	}

	if *exit {
		if err := writeLine(w, gen.exitProgram(), stats); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush journal file: %w", err)
	}
	logger.Info().Msg("Generator finished")
	return nil
}

func writeLine(w *bufio.Writer, line string, stats *Stats) error {
	atomic.AddUint64(&stats.generated, 1)
	if _, err := w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	// The watcher reads whole lines only, so each one is flushed as it is made.
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}
	atomic.AddUint64(&stats.written, 1)
	return nil
}

// runPipeline feeds generated records through the parser, the queue and the
// engine in process.
func runPipeline(ctx context.Context, logger *logging.Logger, stats *Stats) error {
	rb, err := buffer.NewRingBuffer(buffer.RingBufferConfig{
		Size: *bufferSize,
		// A producer that cannot keep pace counts a drop instead of stalling.
		BlockTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to create buffer: %w", err)
	}

	p := parser.New(parser.WithLogger(logger))
	e := engine.New(engine.WithLogger(logger))
	st := state.New()

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for {
			record, err := rb.Dequeue(context.Background())
			if err != nil {
				return
			}
			ev := e.Apply(ctx, p.Parse(record.Data, record.Role), st)
			if ev.IsNull() {
				atomic.AddUint64(&stats.nulls, 1)
			} else {
				atomic.AddUint64(&stats.applied, 1)
			}
		}
	}()

	seed := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, line := range newGenerator(seed, 0).header() {
		atomic.AddUint64(&stats.generated, 1)
		if err := rb.Enqueue(ctx, &buffer.Record{Data: []byte(line), Role: buffer.RoleCurrent}); err != nil {
			return fmt.Errorf("failed to enqueue header: %w", err)
		}
	}

	var wg sync.WaitGroup
	perWorker := max(*targetRate / *workers, 1)
	interval := time.Second / time.Duration(perWorker)

	for i := range *workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(ctx, newGenerator(rand.New(rand.NewSource(seed.Int63()+int64(i))), *malformed), rb, stats, interval)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	rb.Close()
	<-consumed

	logger.Info().
		Str("commander", st.Cmdr).
		Str("system", st.System).
		Msg("Pipeline finished")
	return nil
}

func runWorker(ctx context.Context, gen *generator, rb *buffer.RingBuffer, stats *Stats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			atomic.AddUint64(&stats.generated, 1)
			record := &buffer.Record{Data: []byte(gen.next()), Role: buffer.RoleCurrent}
			if err := rb.Enqueue(ctx, record); err != nil {
				atomic.AddUint64(&stats.dropped, 1)
			}
		}
	}
}
