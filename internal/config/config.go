package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/security"
)

// EnvPrefix prefixes every environment override, e.g. EDJOURNAL_WATCH_DIR.
const EnvPrefix = "EDJOURNAL_"

// Config represents the main configuration
type Config struct {
	Watch       WatchConfig       `yaml:"watch" envPrefix:"WATCH_"`
	Logging     LoggingConfig     `yaml:"logging" envPrefix:"LOG_"`
	Export      ExportConfig      `yaml:"export" envPrefix:"EXPORT_"`
	DeadLetter  DeadLetterConfig  `yaml:"dead_letter" envPrefix:"DLQ_"`
	Metrics     MetricsConfig     `yaml:"metrics" envPrefix:"METRICS_"`
	Health      HealthConfig      `yaml:"health" envPrefix:"HEALTH_"`
	Tracing     TracingConfig     `yaml:"tracing" envPrefix:"TRACING_"`
	Profiling   ProfilingConfig   `yaml:"profiling" envPrefix:"PROFILING_"`
	Extensions  ExtensionsConfig  `yaml:"extensions" envPrefix:"EXT_"`
	Reliability ReliabilityConfig `yaml:"reliability" envPrefix:"RELIABILITY_"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" env:"SHUTDOWN_TIMEOUT"`
}

// WatchConfig defines where the harness writes the journal and how it is
// followed.
type WatchConfig struct {
	Dir                string        `yaml:"dir" env:"DIR"`
	PollInterval       time.Duration `yaml:"poll_interval,omitempty" env:"POLL_INTERVAL"`
	CheckpointPath     string        `yaml:"checkpoint_path,omitempty" env:"CHECKPOINT_PATH"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval,omitempty" env:"CHECKPOINT_INTERVAL"`
	Resume             bool          `yaml:"resume" env:"RESUME"`

	// QueueSize bounds the live queue. A full queue pauses reading, it never
	// drops records.
	QueueSize   int           `yaml:"queue_size,omitempty" env:"QUEUE_SIZE"`
	StopTimeout time.Duration `yaml:"stop_timeout,omitempty" env:"STOP_TIMEOUT"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // json or console
}

// ExportConfig controls the ship loadout files written on Loadout events.
type ExportConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Dir     string `yaml:"dir,omitempty" env:"DIR"`
}

// DeadLetterConfig holds dead letter queue configuration
type DeadLetterConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	Dir           string        `yaml:"dir,omitempty" env:"DIR"`
	MaxSize       int64         `yaml:"max_size,omitempty" env:"MAX_SIZE"`
	MaxAge        time.Duration `yaml:"max_age,omitempty" env:"MAX_AGE"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty" env:"FLUSH_INTERVAL"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Address string `yaml:"address,omitempty" env:"ADDRESS"`
	Path    string `yaml:"path,omitempty" env:"PATH"`
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	Address       string        `yaml:"address,omitempty" env:"ADDRESS"`
	LivenessPath  string        `yaml:"liveness_path,omitempty" env:"LIVENESS_PATH"`
	ReadinessPath string        `yaml:"readiness_path,omitempty" env:"READINESS_PATH"`
	StatusPath    string        `yaml:"status_path,omitempty" env:"STATUS_PATH"`
	Timeout       time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`

	// QueueDegradedAt is the queue utilization (0-1) reported as degraded.
	QueueDegradedAt float64 `yaml:"queue_degraded_at,omitempty" env:"QUEUE_DEGRADED_AT"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint     string  `yaml:"endpoint,omitempty" env:"ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate,omitempty" env:"SAMPLE_RATE"`
	Insecure     bool    `yaml:"insecure,omitempty" env:"INSECURE"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled            bool   `yaml:"enabled" env:"ENABLED"`
	Address            string `yaml:"address,omitempty" env:"ADDRESS"`
	CPUProfilePath     string `yaml:"cpu_profile,omitempty" env:"CPU_PROFILE"`
	MemProfilePath     string `yaml:"mem_profile,omitempty" env:"MEM_PROFILE"`
	GoroutineThreshold int    `yaml:"goroutine_threshold,omitempty" env:"GOROUTINE_THRESHOLD"`
}

// ExtensionsConfig enables the built-in extensions. All are off by default.
type ExtensionsConfig struct {
	Kafka         KafkaConfig         `yaml:"kafka" envPrefix:"KAFKA_"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch" envPrefix:"ES_"`
	S3            S3Config            `yaml:"s3" envPrefix:"S3_"`
	History       HistoryConfig       `yaml:"history" envPrefix:"HISTORY_"`
	EDSY          EDSYConfig          `yaml:"edsy" envPrefix:"EDSY_"`
}

// Count returns the number of enabled extensions.
func (e ExtensionsConfig) Count() int {
	n := 0
	for _, on := range []bool{e.Kafka.Enabled, e.Elasticsearch.Enabled, e.S3.Enabled, e.History.Enabled, e.EDSY.Enabled} {
		if on {
			n++
		}
	}
	return n
}

// KafkaConfig holds Kafka-specific configuration
type KafkaConfig struct {
	Enabled          bool     `yaml:"enabled" env:"ENABLED"`
	Brokers          []string `yaml:"brokers" env:"BROKERS"`
	Topic            string   `yaml:"topic" env:"TOPIC"`
	RequiredAcks     int16    `yaml:"required_acks,omitempty" env:"REQUIRED_ACKS"`
	CompressionCodec string   `yaml:"compression_codec,omitempty" env:"COMPRESSION_CODEC"`
	MaxMessageBytes  int      `yaml:"max_message_bytes,omitempty" env:"MAX_MESSAGE_BYTES"`
	ClientID         string   `yaml:"client_id,omitempty" env:"CLIENT_ID"`
	Version          string   `yaml:"version,omitempty" env:"VERSION"`
	SASLEnabled      bool     `yaml:"sasl_enabled,omitempty" env:"SASL_ENABLED"`
	SASLMechanism    string   `yaml:"sasl_mechanism,omitempty" env:"SASL_MECHANISM"`
	SASLUsername     string   `yaml:"sasl_username,omitempty" env:"SASL_USERNAME"`
	SASLPassword     string   `yaml:"sasl_password,omitempty" env:"SASL_PASSWORD"`

	TLS security.TLSConfig `yaml:"tls,omitempty" envPrefix:"TLS_"`
}

// ElasticsearchConfig holds Elasticsearch-specific configuration
type ElasticsearchConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	Addresses     []string      `yaml:"addresses" env:"ADDRESSES"`
	Index         string        `yaml:"index" env:"INDEX"`
	Pipeline      string        `yaml:"pipeline,omitempty" env:"PIPELINE"`
	Username      string        `yaml:"username,omitempty" env:"USERNAME"`
	Password      string        `yaml:"password,omitempty" env:"PASSWORD"`
	CloudID       string        `yaml:"cloud_id,omitempty" env:"CLOUD_ID"`
	APIKey        string        `yaml:"api_key,omitempty" env:"API_KEY"`
	BatchSize     int           `yaml:"batch_size,omitempty" env:"BATCH_SIZE"`
	BatchBytes    int           `yaml:"batch_bytes,omitempty" env:"BATCH_BYTES"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty" env:"FLUSH_INTERVAL"`

	TLS security.TLSConfig `yaml:"tls,omitempty" envPrefix:"TLS_"`
}

// S3Config holds S3-specific configuration
type S3Config struct {
	Enabled              bool   `yaml:"enabled" env:"ENABLED"`
	Bucket               string `yaml:"bucket" env:"BUCKET"`
	Region               string `yaml:"region" env:"REGION"`
	Prefix               string `yaml:"prefix,omitempty" env:"PREFIX"`
	StorageClass         string `yaml:"storage_class,omitempty" env:"STORAGE_CLASS"`
	ServerSideEncryption string `yaml:"server_side_encryption,omitempty" env:"SERVER_SIDE_ENCRYPTION"`
	ACL                  string `yaml:"acl,omitempty" env:"ACL"`
	Compression          string `yaml:"compression,omitempty" env:"COMPRESSION"`
	Endpoint             string `yaml:"endpoint,omitempty" env:"ENDPOINT"`
	UsePathStyle         bool   `yaml:"use_path_style,omitempty" env:"USE_PATH_STYLE"`
}

// HistoryConfig stores every event in a local SQLite database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path,omitempty" env:"PATH"`
}

// EDSYConfig keeps the shipyard link of the current ship.
type EDSYConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// ReliabilityConfig holds retry and circuit breaker configuration shared by
// the network extensions.
type ReliabilityConfig struct {
	Retry          RetryConfig          `yaml:"retry" envPrefix:"RETRY_"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" envPrefix:"BREAKER_"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty" env:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty" env:"MAX_BACKOFF"`
	Multiplier     float64       `yaml:"multiplier,omitempty" env:"MULTIPLIER"`
	Jitter         bool          `yaml:"jitter,omitempty" env:"JITTER"`
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests,omitempty" env:"MAX_REQUESTS"`
	Interval         time.Duration `yaml:"interval,omitempty" env:"INTERVAL"`
	Timeout          time.Duration `yaml:"timeout,omitempty" env:"TIMEOUT"`
	FailureThreshold uint32        `yaml:"failure_threshold,omitempty" env:"FAILURE_THRESHOLD"`
}

// Default values
const (
	DefaultWatchDir           = "."
	DefaultPollInterval       = time.Second
	DefaultCheckpointPath     = ".edjournal/checkpoints"
	DefaultCheckpointInterval = 5 * time.Second
	DefaultQueueSize          = 4096
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
	DefaultExportDir          = "loadouts"
	DefaultDLQDir             = ".edjournal/dlq"
	DefaultMetricsAddress     = "localhost:9090"
	DefaultHealthAddress      = "localhost:8080"
	DefaultHistoryPath        = ".edjournal/history.db"
	DefaultShutdownTimeout    = 10 * time.Second
)

// Load loads configuration from a YAML file, expanding ${VAR} references,
// then applies EDJOURNAL_* environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expandedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return finish(&cfg)
}

// FromEnv builds a configuration from defaults and environment overrides
// only.
func FromEnv() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unspecified configuration
func (c *Config) applyDefaults() {
	if c.Watch.Dir == "" {
		c.Watch.Dir = DefaultWatchDir
	}
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = DefaultPollInterval
	}
	if c.Watch.CheckpointPath == "" {
		c.Watch.CheckpointPath = DefaultCheckpointPath
	}
	if c.Watch.CheckpointInterval == 0 {
		c.Watch.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.Watch.QueueSize == 0 {
		c.Watch.QueueSize = DefaultQueueSize
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Export.Dir == "" {
		c.Export.Dir = DefaultExportDir
	}
	if c.DeadLetter.Dir == "" {
		c.DeadLetter.Dir = DefaultDLQDir
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddress
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Health.Address == "" {
		c.Health.Address = DefaultHealthAddress
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = 5 * time.Second
	}
	if c.Health.QueueDegradedAt == 0 {
		c.Health.QueueDegradedAt = 0.8
	}

	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}

	if c.Extensions.Kafka.Topic == "" {
		c.Extensions.Kafka.Topic = "edjournal.events"
	}
	if c.Extensions.Elasticsearch.Index == "" {
		c.Extensions.Elasticsearch.Index = "edjournal"
	}
	if c.Extensions.S3.Prefix == "" {
		c.Extensions.S3.Prefix = "loadouts"
	}
	if c.Extensions.S3.Compression == "" {
		c.Extensions.S3.Compression = "none"
	}
	if c.Extensions.History.Path == "" {
		c.Extensions.History.Path = DefaultHistoryPath
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Watch.Dir == "" {
		errs = append(errs, errors.New("watch.dir must be set"))
	}
	if c.Watch.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("watch.poll_interval must not be negative: %s", c.Watch.PollInterval))
	}
	if c.Watch.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("watch.queue_size must not be negative: %d", c.Watch.QueueSize))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", c.Logging.Level))
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Logging.Format))
	}

	if c.Health.QueueDegradedAt < 0 || c.Health.QueueDegradedAt > 1 {
		errs = append(errs, fmt.Errorf("health.queue_degraded_at must be between 0 and 1: %v", c.Health.QueueDegradedAt))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be between 0 and 1: %v", c.Tracing.SampleRate))
	}

	ext := c.Extensions
	if ext.Kafka.Enabled && len(ext.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("extensions.kafka: at least one broker is required"))
	}
	if err := ext.Kafka.TLS.Validate(); ext.Kafka.Enabled && err != nil {
		errs = append(errs, fmt.Errorf("extensions.kafka.tls: %w", err))
	}
	if err := ext.Elasticsearch.TLS.Validate(); ext.Elasticsearch.Enabled && err != nil {
		errs = append(errs, fmt.Errorf("extensions.elasticsearch.tls: %w", err))
	}
	if ext.Elasticsearch.Enabled && len(ext.Elasticsearch.Addresses) == 0 && ext.Elasticsearch.CloudID == "" {
		errs = append(errs, errors.New("extensions.elasticsearch: addresses or cloud_id is required"))
	}
	if ext.S3.Enabled && ext.S3.Bucket == "" {
		errs = append(errs, errors.New("extensions.s3: bucket is required"))
	}
	switch ext.S3.Compression {
	case "", "none", "gzip", "snappy":
	default:
		errs = append(errs, fmt.Errorf("extensions.s3: unsupported compression: %s", ext.S3.Compression))
	}

	if c.Reliability.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reliability.retry.max_retries must not be negative: %d", c.Reliability.Retry.MaxRetries))
	}

	return errors.Join(errs...)
}

// LoadOrDefault loads configuration from file or returns a default configuration
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
