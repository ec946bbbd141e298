// Package profiling serves pprof and optionally writes CPU and heap profiles
// for the lifetime of a watch session.
package profiling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	runtimepprof "runtime/pprof"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
)

// Config holds profiling configuration
type Config struct {
	Enabled            bool
	Address            string // pprof HTTP address, empty for none
	CPUProfilePath     string
	MemProfilePath     string
	GoroutineThreshold int // warn above this many goroutines
	CheckInterval      time.Duration
}

// Profiler manages performance profiling
type Profiler struct {
	config Config
	logger *logging.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cpuFile  *os.File
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a new profiler
func New(config Config, logger *logging.Logger) *Profiler {
	if logger == nil {
		logger = logging.Global()
	}
	if config.GoroutineThreshold == 0 {
		config.GoroutineThreshold = 10000
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = 30 * time.Second
	}

	return &Profiler{
		config: config,
		logger: logger.WithComponent("profiling"),
	}
}

// Start begins profiling
func (p *Profiler) Start() error {
	if !p.config.Enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.CPUProfilePath != "" {
		if err := p.startCPUProfile(); err != nil {
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
	}

	if p.config.Address != "" {
		ln, err := net.Listen("tcp", p.config.Address)
		if err != nil {
			p.stopCPUProfile()
			return fmt.Errorf("failed to listen on %s: %w", p.config.Address, err)
		}
		p.listener = ln
		p.server = &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}

		go func() {
			p.logger.Info().Str("address", ln.Addr().String()).Msg("Starting profiling HTTP server")
			if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.logger.Error().Err(err).Msg("Profiling server error")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.monitorGoroutines(ctx)

	p.logger.Info().Msg("Profiling started")
	return nil
}

// Addr returns the bound pprof address, or "" when not serving.
func (p *Profiler) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Stop stops profiling, writing the heap profile if configured.
func (p *Profiler) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	p.cancel = nil

	p.stopCPUProfile()

	var err error
	if p.config.MemProfilePath != "" {
		if memErr := p.writeMemProfile(); memErr != nil {
			err = fmt.Errorf("failed to write memory profile: %w", memErr)
		}
	}

	if p.server != nil {
		if shutdownErr := p.server.Shutdown(ctx); shutdownErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to shutdown profiling server: %w", shutdownErr))
		}
		p.server, p.listener = nil, nil
	}

	p.logger.Info().Msg("Profiling stopped")
	return err
}

// Name identifies the profiler during shutdown.
func (p *Profiler) Name() string { return "profiling" }

// Handler serves pprof plus /debug/stats.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/stats", statsHandler)
	return mux
}

func (p *Profiler) startCPUProfile() error {
	f, err := os.Create(p.config.CPUProfilePath)
	if err != nil {
		return err
	}

	if err := runtimepprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}

	p.cpuFile = f
	p.logger.Info().Str("path", p.config.CPUProfilePath).Msg("CPU profiling started")
	return nil
}

func (p *Profiler) stopCPUProfile() {
	if p.cpuFile == nil {
		return
	}
	runtimepprof.StopCPUProfile()
	p.cpuFile.Close()
	p.cpuFile = nil
	p.logger.Info().Str("path", p.config.CPUProfilePath).Msg("CPU profile saved")
}

func (p *Profiler) writeMemProfile() error {
	f, err := os.Create(p.config.MemProfilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	runtime.GC()

	if err := runtimepprof.WriteHeapProfile(f); err != nil {
		return err
	}

	p.logger.Info().Str("path", p.config.MemProfilePath).Msg("Memory profile saved")
	return nil
}

func (p *Profiler) monitorGoroutines(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if count := runtime.NumGoroutine(); count > p.config.GoroutineThreshold {
				p.logger.Warn().
					Int("goroutines", count).
					Int("threshold", p.config.GoroutineThreshold).
					Msg("High goroutine count detected")
			}
		}
	}
}

// Stats is the document served at /debug/stats.
type Stats struct {
	Goroutines  int    `json:"goroutines"`
	CPUs        int    `json:"cpus"`
	HeapAlloc   uint64 `json:"heap_alloc_bytes"`
	HeapObjects uint64 `json:"heap_objects"`
	Sys         uint64 `json:"sys_bytes"`
	NumGC       uint32 `json:"num_gc"`
	PauseTotal  uint64 `json:"pause_total_ns"`
}

// ReadStats samples the runtime.
func ReadStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		Goroutines:  runtime.NumGoroutine(),
		CPUs:        runtime.NumCPU(),
		HeapAlloc:   m.HeapAlloc,
		HeapObjects: m.HeapObjects,
		Sys:         m.Sys,
		NumGC:       m.NumGC,
		PauseTotal:  m.PauseTotalNs,
	}
}

func statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(ReadStats())
}
