package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edjournal.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
watch:
  dir: /home/cmdr/journal
  poll_interval: 250ms
  checkpoint_interval: 10s
  resume: true
  queue_size: 128

logging:
  level: debug
  format: json

export:
  enabled: true
  dir: /home/cmdr/loadouts

extensions:
  kafka:
    enabled: true
    brokers: [kafka-1:9092, kafka-2:9092]
  s3:
    enabled: true
    bucket: cmdr-loadouts
    compression: snappy

reliability:
  retry:
    max_retries: 4
  circuit_breaker:
    failure_threshold: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Watch.Dir != "/home/cmdr/journal" {
		t.Errorf("Expected watch dir, got %s", cfg.Watch.Dir)
	}
	if cfg.Watch.PollInterval != 250*time.Millisecond {
		t.Errorf("Expected poll interval 250ms, got %v", cfg.Watch.PollInterval)
	}
	if cfg.Watch.CheckpointInterval != 10*time.Second {
		t.Errorf("Expected checkpoint interval 10s, got %v", cfg.Watch.CheckpointInterval)
	}
	if !cfg.Watch.Resume || cfg.Watch.QueueSize != 128 {
		t.Errorf("Unexpected watch config %+v", cfg.Watch)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
	if !cfg.Export.Enabled || cfg.Export.Dir != "/home/cmdr/loadouts" {
		t.Errorf("Unexpected export config %+v", cfg.Export)
	}
	if len(cfg.Extensions.Kafka.Brokers) != 2 {
		t.Errorf("Expected 2 brokers, got %d", len(cfg.Extensions.Kafka.Brokers))
	}
	if cfg.Extensions.Kafka.Topic != "edjournal.events" {
		t.Errorf("Expected default topic, got %s", cfg.Extensions.Kafka.Topic)
	}
	if cfg.Extensions.S3.Compression != "snappy" {
		t.Errorf("Expected snappy compression, got %s", cfg.Extensions.S3.Compression)
	}
	if cfg.Extensions.Count() != 2 {
		t.Errorf("Expected 2 enabled extensions, got %d", cfg.Extensions.Count())
	}
	if cfg.Reliability.Retry.MaxRetries != 4 || cfg.Reliability.CircuitBreaker.FailureThreshold != 3 {
		t.Errorf("Unexpected reliability config %+v", cfg.Reliability)
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	t.Setenv("JOURNAL_DIR", "/data/journal")

	path := writeConfig(t, `
watch:
  dir: ${JOURNAL_DIR}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Watch.Dir != "/data/journal" {
		t.Errorf("Expected dir from env var, got %s", cfg.Watch.Dir)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EDJOURNAL_LOG_LEVEL", "warn")
	t.Setenv("EDJOURNAL_WATCH_POLL_INTERVAL", "2s")
	t.Setenv("EDJOURNAL_EXT_KAFKA_ENABLED", "true")
	t.Setenv("EDJOURNAL_EXT_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("EDJOURNAL_RELIABILITY_RETRY_MAX_RETRIES", "7")

	path := writeConfig(t, `
logging:
  level: debug
watch:
  dir: /journal
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected env to override log level, got %s", cfg.Logging.Level)
	}
	if cfg.Watch.Dir != "/journal" {
		t.Errorf("Expected file value to survive, got %s", cfg.Watch.Dir)
	}
	if cfg.Watch.PollInterval != 2*time.Second {
		t.Errorf("Expected poll interval 2s, got %v", cfg.Watch.PollInterval)
	}
	if !cfg.Extensions.Kafka.Enabled || len(cfg.Extensions.Kafka.Brokers) != 2 {
		t.Errorf("Unexpected kafka config %+v", cfg.Extensions.Kafka)
	}
	if cfg.Reliability.Retry.MaxRetries != 7 {
		t.Errorf("Expected 7 retries, got %d", cfg.Reliability.Retry.MaxRetries)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("EDJOURNAL_WATCH_DIR", "/env/journal")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Watch.Dir != "/env/journal" {
		t.Errorf("Expected dir from env, got %s", cfg.Watch.Dir)
	}
	if cfg.Watch.QueueSize != DefaultQueueSize {
		t.Errorf("Expected default queue size, got %d", cfg.Watch.QueueSize)
	}
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("EDJOURNAL_WATCH_QUEUE_SIZE", "lots")

	if _, err := FromEnv(); err == nil {
		t.Error("Expected an error for a non-numeric queue size")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	if _, err := Load(writeConfig(t, "watch: [not, a, map]")); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "negative queue size",
			mutate:  func(c *Config) { c.Watch.QueueSize = -1 },
			wantErr: "queue_size",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Extensions.Kafka.Enabled = true },
			wantErr: "broker",
		},
		{
			name: "elasticsearch cloud id is enough",
			mutate: func(c *Config) {
				c.Extensions.Elasticsearch.Enabled = true
				c.Extensions.Elasticsearch.CloudID = "deployment:abc"
			},
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Extensions.S3.Enabled = true },
			wantErr: "bucket",
		},
		{
			name:    "s3 unknown compression",
			mutate:  func(c *Config) { c.Extensions.S3.Compression = "lz4" },
			wantErr: "compression",
		},
		{
			name:    "queue threshold out of range",
			mutate:  func(c *Config) { c.Health.QueueDegradedAt = 1.5 },
			wantErr: "queue_degraded_at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Expected default log level %s, got %s", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Watch.PollInterval != DefaultPollInterval {
		t.Errorf("Expected default poll interval, got %v", cfg.Watch.PollInterval)
	}
	if cfg.Extensions.Count() != 0 {
		t.Errorf("Expected no extensions by default, got %d", cfg.Extensions.Count())
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.Watch.Dir != DefaultWatchDir {
		t.Errorf("Expected default config, got dir %s", cfg.Watch.Dir)
	}
}

func TestExtensionTLS(t *testing.T) {
	t.Setenv("EDJOURNAL_EXT_KAFKA_ENABLED", "true")
	t.Setenv("EDJOURNAL_EXT_KAFKA_BROKERS", "kafka:9093")
	t.Setenv("EDJOURNAL_EXT_KAFKA_TLS_ENABLED", "true")
	t.Setenv("EDJOURNAL_EXT_KAFKA_TLS_CA_FILE", "/etc/ssl/kafka-ca.pem")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if !cfg.Extensions.Kafka.TLS.Enabled || cfg.Extensions.Kafka.TLS.CAFile != "/etc/ssl/kafka-ca.pem" {
		t.Errorf("Kafka TLS = %+v", cfg.Extensions.Kafka.TLS)
	}

	t.Setenv("EDJOURNAL_EXT_KAFKA_TLS_CERT_FILE", "/etc/ssl/client.pem")
	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "extensions.kafka.tls") {
		t.Errorf("FromEnv() error = %v, want a TLS validation error", err)
	}
}
