package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const namespace = "edjournal"

// Collector provides a central place for all application metrics
type Collector struct {
	// Watcher metrics
	RecordsRead   *prometheus.CounterVec
	BytesRead     *prometheus.CounterVec
	WatcherErrors *prometheus.CounterVec
	WatcherStatus *prometheus.GaugeVec

	// Parser metrics
	ParseFailures *prometheus.CounterVec

	// Engine metrics
	EventsApplied *prometheus.CounterVec
	ApplyFailures *prometheus.CounterVec
	ApplyDuration *prometheus.HistogramVec

	// Queue metrics
	QueueDepth   prometheus.Gauge
	QueueDropped prometheus.Counter

	// Extension metrics
	ExtensionNotifications *prometheus.CounterVec
	ExtensionFailures      *prometheus.CounterVec
	ExtensionDuration      *prometheus.HistogramVec

	// Export metrics
	ExportsWritten prometheus.Counter
	ExportsSkipped prometheus.Counter
	ExportFailures prometheus.Counter

	// System metrics
	SystemGoroutines prometheus.Gauge
	SystemMemAlloc   prometheus.Gauge
	SystemMemSys     prometheus.Gauge
	SystemGCPauses   prometheus.Histogram

	// Dead letter queue metrics
	DLQEventsWritten prometheus.Counter
	DLQSize          prometheus.Gauge

	// Circuit breaker metrics
	CircuitBreakerState       *prometheus.GaugeVec
	CircuitBreakerConsecutive *prometheus.GaugeVec

	// Health metrics
	HealthStatus *prometheus.GaugeVec

	registry *prometheus.Registry
	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
	}

	c.initWatcherMetrics()
	c.initParserMetrics()
	c.initEngineMetrics()
	c.initQueueMetrics()
	c.initExtensionMetrics()
	c.initExportMetrics()
	c.initSystemMetrics()
	c.initDLQMetrics()
	c.initCircuitBreakerMetrics()
	c.initHealthMetrics()

	return c
}

func (c *Collector) initWatcherMetrics() {
	c.RecordsRead = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "records_read_total",
			Help:      "Total number of journal records read per file role",
		},
		[]string{"role"},
	)

	c.BytesRead = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "bytes_read_total",
			Help:      "Total bytes read per file role",
		},
		[]string{"role"},
	)

	c.WatcherErrors = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "errors_total",
			Help:      "Total number of watcher failures",
		},
		[]string{"reason"},
	)

	c.WatcherStatus = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "healthy",
			Help:      "Watcher status per file role (1=ok, 0=failing)",
		},
		[]string{"role"},
	)
}

func (c *Collector) initParserMetrics() {
	c.ParseFailures = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "malformed_records_total",
			Help:      "Total number of records that could not be parsed",
		},
		[]string{"reason"},
	)
}

func (c *Collector) initEngineMetrics() {
	c.EventsApplied = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_applied_total",
			Help:      "Total number of events applied to the commander state",
		},
		[]string{"event"},
	)

	c.ApplyFailures = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "apply_failures_total",
			Help:      "Total number of events whose state transition failed",
		},
		[]string{"event"},
	)

	c.ApplyDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying one event",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~260ms
		},
		[]string{"event"},
	)
}

func (c *Collector) initQueueMetrics() {
	c.QueueDepth = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Records waiting for the consumer",
		},
	)

	c.QueueDropped = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Records discarded at shutdown without being processed",
		},
	)
}

func (c *Collector) initExtensionMetrics() {
	c.ExtensionNotifications = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extension",
			Name:      "notifications_total",
			Help:      "Total number of notifications delivered per extension",
		},
		[]string{"extension"},
	)

	c.ExtensionFailures = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extension",
			Name:      "failures_total",
			Help:      "Total number of notifications that returned a status or panicked",
		},
		[]string{"extension"},
	)

	c.ExtensionDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extension",
			Name:      "notify_duration_seconds",
			Help:      "Time spent in one extension notification",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"extension"},
	)
}

func (c *Collector) initExportMetrics() {
	c.ExportsWritten = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "written_total",
			Help:      "Ship loadout exports written",
		},
	)

	c.ExportsSkipped = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "skipped_total",
			Help:      "Ship loadout exports skipped because the last export was identical",
		},
	)

	c.ExportFailures = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "failures_total",
			Help:      "Ship loadout exports that could not be written",
		},
	)
}

func (c *Collector) initSystemMetrics() {
	c.SystemGoroutines = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		},
	)

	c.SystemMemAlloc = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_allocated_bytes",
			Help:      "Bytes of allocated heap objects",
		},
	)

	c.SystemMemSys = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_system_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	c.SystemGCPauses = promauto.With(c.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "gc_pause_seconds",
			Help:      "GC pause duration",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to ~300ms
		},
	)
}

func (c *Collector) initDLQMetrics() {
	c.DLQEventsWritten = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "records_written_total",
			Help:      "Total number of malformed records written to the dead letter queue",
		},
	)

	c.DLQSize = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "size",
			Help:      "Current number of records in the dead letter queue",
		},
	)
}

func (c *Collector) initCircuitBreakerMetrics() {
	c.CircuitBreakerState = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	c.CircuitBreakerConsecutive = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "consecutive_failures",
			Help:      "Current number of consecutive failures",
		},
		[]string{"name"},
	)
}

func (c *Collector) initHealthMetrics() {
	c.HealthStatus = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "status",
			Help:      "Health status of components (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)
}

// Start begins collecting system metrics periodically
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}

	c.started = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh

	// Collect system metrics every 15 seconds
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collectSystemMetrics()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	close(c.stopCh)
	c.started = false
}

// collectSystemMetrics gathers runtime metrics
func (c *Collector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
	c.SystemMemAlloc.Set(float64(m.Alloc))
	c.SystemMemSys.Set(float64(m.Sys))

	// Record GC pause time
	if m.NumGC > 0 {
		lastPause := m.PauseNs[(m.NumGC+255)%256]
		c.SystemGCPauses.Observe(float64(lastPause) / 1e9)
	}
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Global metrics collector
var (
	globalCollector *Collector
	once            sync.Once
)

// GetGlobalCollector returns the global metrics collector
func GetGlobalCollector() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}
