package extension

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/reliability"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/security"
)

// KafkaConfig contains Kafka-specific configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// RequiredAcks specifies the number of acknowledgments required (0, 1, -1)
	RequiredAcks int16

	// CompressionCodec specifies the compression codec (none, gzip, snappy, lz4, zstd)
	CompressionCodec string

	MaxMessageBytes int
	ClientID        string
	Version         string

	TLS           security.TLSConfig
	SASLEnabled   bool
	SASLMechanism string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	SASLUsername  string
	SASLPassword  string

	Retry   reliability.RetryConfig
	Breaker reliability.CircuitBreakerConfig
}

// DefaultKafkaConfig returns default Kafka configuration
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "edjournal.events",
		RequiredAcks:     1,
		CompressionCodec: "none",
		MaxMessageBytes:  1000000,
		ClientID:         "edjournal",
		Version:          "3.0.0",
		Retry: reliability.RetryConfig{
			MaxRetries:     2,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
			Jitter:         true,
		},
		Breaker: reliability.CircuitBreakerConfig{Timeout: 30 * time.Second},
	}
}

// KafkaPublisher sends one message per journal event, keyed by commander so a
// commander's events stay ordered within a partition.
type KafkaPublisher struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	guard    *reliability.Guard
	logger   *logging.Logger
	closed   atomic.Bool
}

// NewKafkaPublisher connects to the brokers.
func NewKafkaPublisher(config KafkaConfig, logger *logging.Logger, collector *metrics.Collector) (*KafkaPublisher, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers specified")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("no topic specified")
	}

	saramaConfig, err := newSaramaConfig(config)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(config, producer, logger, collector), nil
}

// NewKafkaPublisherWithProducer uses an existing producer. The publisher owns
// it and closes it on Close.
func NewKafkaPublisherWithProducer(config KafkaConfig, producer sarama.SyncProducer, logger *logging.Logger, collector *metrics.Collector) *KafkaPublisher {
	if logger == nil {
		logger = logging.Global()
	}
	breaker := config.Breaker
	breaker.Name = "kafka"
	breaker.Metrics = collector

	return &KafkaPublisher{
		config:   config,
		producer: producer,
		guard:    reliability.NewGuard(breaker, config.Retry),
		logger:   logger.WithComponent("kafka"),
	}
}

func newSaramaConfig(config KafkaConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.RequiredAcks(config.RequiredAcks)
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	// Retries are done by the guard.
	saramaConfig.Producer.Retry.Max = 0
	if config.ClientID != "" {
		saramaConfig.ClientID = config.ClientID
	}

	switch config.CompressionCodec {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	if config.MaxMessageBytes > 0 {
		saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes
	}

	if config.Version != "" {
		version, err := sarama.ParseKafkaVersion(config.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid Kafka version: %w", err)
		}
		saramaConfig.Version = version
	}

	if config.SASLEnabled {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = config.SASLUsername
		saramaConfig.Net.SASL.Password = config.SASLPassword

		switch config.SASLMechanism {
		case "SCRAM-SHA-256":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	tlsConfig, err := security.LoadTLSConfig(config.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to load Kafka TLS config: %w", err)
	}
	if tlsConfig != nil {
		saramaConfig.Net.TLS.Enable = true
		saramaConfig.Net.TLS.Config = tlsConfig
	}

	return saramaConfig, nil
}

// Name returns the extension name
func (k *KafkaPublisher) Name() string { return "kafka" }

// JournalEntry publishes the event.
func (k *KafkaPublisher) JournalEntry(ctx context.Context, n Notification) string {
	if k.closed.Load() {
		return ""
	}

	msg, err := k.buildMessage(n)
	if err != nil {
		k.logger.Error().Err(err).Msg("Failed to build Kafka message")
		return ""
	}

	err = k.guard.Do(ctx, func(ctx context.Context) error {
		partition, offset, err := k.producer.SendMessage(msg)
		if err != nil {
			return fmt.Errorf("failed to send message to Kafka: %w", err)
		}
		k.logger.Debug().
			Str("kind", string(n.Event.Kind)).
			Int32("partition", partition).
			Int64("offset", offset).
			Msg("Published event")
		return nil
	})
	if err != nil {
		k.logger.Error().Err(err).Str("kind", string(n.Event.Kind)).Msg("Failed to publish event")
		return k.guard.Status(err, "Kafka: event not published")
	}
	return ""
}

// buildMessage creates a Kafka producer message from a notification
func (k *KafkaPublisher) buildMessage(n Notification) (*sarama.ProducerMessage, error) {
	record, err := NewRecord(n)
	if err != nil {
		return nil, err
	}

	value, err := record.Marshal()
	if err != nil {
		return nil, err
	}

	msg := &sarama.ProducerMessage{
		Topic:     k.config.Topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: record.Timestamp,
	}
	if record.Commander != "" {
		msg.Key = sarama.StringEncoder(record.Commander)
	}
	return msg, nil
}

// Close closes the producer
func (k *KafkaPublisher) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
