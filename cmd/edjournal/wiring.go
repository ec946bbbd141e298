package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/config"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/dlq"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/extension"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/monitor"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/profiling"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/reliability"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/tracing"
)

func monitorConfig(cfg config.WatchConfig) monitor.Config {
	return monitor.Config{
		Dir:          cfg.Dir,
		PollInterval: cfg.PollInterval,
		Resume:       cfg.Resume,
		QueueSize:    cfg.QueueSize,
		StopTimeout:  cfg.StopTimeout,
	}
}

func dlqConfig(cfg config.DeadLetterConfig) dlq.Config {
	return dlq.Config{
		Dir:           cfg.Dir,
		MaxSize:       cfg.MaxSize,
		MaxAge:        cfg.MaxAge,
		FlushInterval: cfg.FlushInterval,
	}
}

func tracingConfig(cfg config.TracingConfig) tracing.Config {
	return tracing.Config{
		Enabled:    cfg.Enabled,
		Endpoint:   cfg.Endpoint,
		Insecure:   cfg.Insecure,
		SampleRate: cfg.SampleRate,
		Version:    version,
	}
}

func profilingConfig(cfg config.ProfilingConfig) profiling.Config {
	return profiling.Config{
		Enabled:            cfg.Enabled,
		Address:            cfg.Address,
		CPUProfilePath:     cfg.CPUProfilePath,
		MemProfilePath:     cfg.MemProfilePath,
		GoroutineThreshold: cfg.GoroutineThreshold,
	}
}

func retryConfig(cfg config.RetryConfig, base reliability.RetryConfig) reliability.RetryConfig {
	if cfg.MaxRetries > 0 {
		base.MaxRetries = cfg.MaxRetries
	}
	if cfg.InitialBackoff > 0 {
		base.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		base.MaxBackoff = cfg.MaxBackoff
	}
	if cfg.Multiplier > 0 {
		base.Multiplier = cfg.Multiplier
	}
	if cfg.Jitter {
		base.Jitter = true
	}
	return base
}

func breakerConfig(cfg config.CircuitBreakerConfig, base reliability.CircuitBreakerConfig, collector *metrics.Collector) reliability.CircuitBreakerConfig {
	if cfg.MaxRequests > 0 {
		base.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		base.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		base.Timeout = cfg.Timeout
	}
	if threshold := cfg.FailureThreshold; threshold > 0 {
		base.ReadyToTrip = func(counts reliability.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		}
	}
	base.Metrics = collector
	return base
}

func kafkaConfig(cfg config.KafkaConfig, rel config.ReliabilityConfig, collector *metrics.Collector) extension.KafkaConfig {
	out := extension.DefaultKafkaConfig()
	out.Brokers = cfg.Brokers
	out.Topic = cfg.Topic
	out.TLS = cfg.TLS
	out.SASLEnabled = cfg.SASLEnabled
	out.SASLMechanism = cfg.SASLMechanism
	out.SASLUsername = cfg.SASLUsername
	out.SASLPassword = cfg.SASLPassword
	if cfg.RequiredAcks != 0 {
		out.RequiredAcks = cfg.RequiredAcks
	}
	if cfg.CompressionCodec != "" {
		out.CompressionCodec = cfg.CompressionCodec
	}
	if cfg.MaxMessageBytes > 0 {
		out.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.ClientID != "" {
		out.ClientID = cfg.ClientID
	}
	if cfg.Version != "" {
		out.Version = cfg.Version
	}
	out.Retry = retryConfig(rel.Retry, out.Retry)
	out.Breaker = breakerConfig(rel.CircuitBreaker, out.Breaker, collector)
	out.Breaker.Name = "kafka"
	return out
}

func elasticsearchConfig(cfg config.ElasticsearchConfig, rel config.ReliabilityConfig, collector *metrics.Collector) extension.ElasticsearchConfig {
	out := extension.DefaultElasticsearchConfig()
	if len(cfg.Addresses) > 0 {
		out.Addresses = cfg.Addresses
	}
	out.Index = cfg.Index
	out.Pipeline = cfg.Pipeline
	out.Username = cfg.Username
	out.Password = cfg.Password
	out.CloudID = cfg.CloudID
	out.APIKey = cfg.APIKey
	out.TLS = cfg.TLS
	if cfg.BatchSize > 0 {
		out.Batch.MaxBatchSize = cfg.BatchSize
	}
	if cfg.BatchBytes > 0 {
		out.Batch.MaxBatchBytes = cfg.BatchBytes
	}
	if cfg.FlushInterval > 0 {
		out.Batch.FlushInterval = cfg.FlushInterval
	}
	out.Retry = retryConfig(rel.Retry, out.Retry)
	out.Breaker = breakerConfig(rel.CircuitBreaker, out.Breaker, collector)
	out.Breaker.Name = "elasticsearch"
	return out
}

func s3Config(cfg config.S3Config, rel config.ReliabilityConfig, collector *metrics.Collector) extension.S3Config {
	out := extension.DefaultS3Config()
	out.Bucket = cfg.Bucket
	if cfg.Region != "" {
		out.Region = cfg.Region
	}
	out.Prefix = cfg.Prefix
	if cfg.StorageClass != "" {
		out.StorageClass = cfg.StorageClass
	}
	out.ServerSideEncryption = cfg.ServerSideEncryption
	if cfg.ACL != "" {
		out.ACL = cfg.ACL
	}
	out.Endpoint = cfg.Endpoint
	out.UsePathStyle = cfg.UsePathStyle
	out.Compression = extension.CompressionType(cfg.Compression)
	out.Retry = retryConfig(rel.Retry, out.Retry)
	out.Breaker = breakerConfig(rel.CircuitBreaker, out.Breaker, collector)
	out.Breaker.Name = "s3"
	return out
}

// extensions is what buildExtensions wired up.
type extensions struct {
	registry *extension.Registry
	edsy     *extension.EDSY
}

// buildExtensions registers the enabled extensions in a fixed order. On error
// the ones already opened are closed.
func buildExtensions(ctx context.Context, cfg *config.Config, registry *extension.Registry, logger *logging.Logger, collector *metrics.Collector) (*extensions, error) {
	ext := cfg.Extensions
	out := &extensions{registry: registry}

	fail := func(err error) (*extensions, error) {
		_ = registry.Close()
		return nil, err
	}

	if ext.History.Enabled {
		if err := os.MkdirAll(filepath.Dir(ext.History.Path), 0755); err != nil {
			return fail(fmt.Errorf("failed to create history directory: %w", err))
		}
		h, err := extension.OpenHistory(ext.History.Path, logger)
		if err != nil {
			return fail(err)
		}
		if err := registry.Register(h); err != nil {
			_ = h.Close()
			return fail(err)
		}
	}

	if ext.EDSY.Enabled {
		out.edsy = extension.NewEDSY(logger)
		if err := registry.Register(out.edsy); err != nil {
			return fail(err)
		}
	}

	if ext.Kafka.Enabled {
		k, err := extension.NewKafkaPublisher(kafkaConfig(ext.Kafka, cfg.Reliability, collector), logger, collector)
		if err != nil {
			return fail(fmt.Errorf("failed to create Kafka publisher: %w", err))
		}
		if err := registry.Register(k); err != nil {
			_ = k.Close()
			return fail(err)
		}
	}

	if ext.Elasticsearch.Enabled {
		e, err := extension.NewElasticsearchIndexer(elasticsearchConfig(ext.Elasticsearch, cfg.Reliability, collector), logger, collector)
		if err != nil {
			return fail(fmt.Errorf("failed to create Elasticsearch indexer: %w", err))
		}
		if err := registry.Register(e); err != nil {
			_ = e.Close()
			return fail(err)
		}
	}

	if ext.S3.Enabled {
		a, err := extension.NewLoadoutArchive(ctx, s3Config(ext.S3, cfg.Reliability, collector), logger, collector)
		if err != nil {
			return fail(fmt.Errorf("failed to create S3 loadout archive: %w", err))
		}
		if err := registry.Register(a); err != nil {
			return fail(err)
		}
	}

	logger.Info().Int("extensions", registry.Len()).Msg("Extensions ready")
	return out, nil
}
