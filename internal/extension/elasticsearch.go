package extension

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/elastic/go-elasticsearch/v8"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/reliability"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/security"
)

// ElasticsearchConfig contains Elasticsearch-specific configuration
type ElasticsearchConfig struct {
	Addresses []string

	// Index is the index prefix. Documents go to <Index>-YYYY.MM.DD by event
	// timestamp.
	Index string

	// Pipeline is the ingest pipeline to use
	Pipeline string

	Username string
	Password string
	CloudID  string
	APIKey   string
	TLS      security.TLSConfig

	Batch   BatcherConfig
	Retry   reliability.RetryConfig
	Breaker reliability.CircuitBreakerConfig
}

// DefaultElasticsearchConfig returns default Elasticsearch configuration
func DefaultElasticsearchConfig() ElasticsearchConfig {
	return ElasticsearchConfig{
		Addresses: []string{"http://localhost:9200"},
		Index:     "edjournal",
		Batch: BatcherConfig{
			MaxBatchSize:  200,
			MaxBatchBytes: 10 * 1024 * 1024,
			FlushInterval: 5 * time.Second,
		},
		Retry:   reliability.RetryConfig{MaxRetries: 3, Jitter: true},
		Breaker: reliability.CircuitBreakerConfig{Timeout: 30 * time.Second},
	}
}

// ElasticsearchIndexer bulk-indexes journal events. Events are batched, so a
// failure surfaces as a status on the event after the failed flush.
type ElasticsearchIndexer struct {
	config  ElasticsearchConfig
	client  *elasticsearch.Client
	batcher *Batcher
	guard   *reliability.Guard
	logger  *logging.Logger

	mu      sync.Mutex
	lastErr error
	closed  atomic.Bool
}

type bulkMeta struct {
	Index bulkAction `json:"index"`
}

type bulkAction struct {
	Index    string `json:"_index"`
	Pipeline string `json:"pipeline,omitempty"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// NewElasticsearchIndexer creates the client. It does not contact the
// cluster; the first flush does.
func NewElasticsearchIndexer(config ElasticsearchConfig, logger *logging.Logger, collector *metrics.Collector) (*ElasticsearchIndexer, error) {
	if len(config.Addresses) == 0 && config.CloudID == "" {
		return nil, fmt.Errorf("no addresses or cloud ID specified")
	}
	if config.Index == "" {
		return nil, fmt.Errorf("no index specified")
	}
	if logger == nil {
		logger = logging.Global()
	}

	tlsConfig, err := security.LoadTLSConfig(config.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to load Elasticsearch TLS config: %w", err)
	}
	esConfig := elasticsearch.Config{
		Addresses: config.Addresses,
		CloudID:   config.CloudID,
		Username:  config.Username,
		Password:  config.Password,
		APIKey:    config.APIKey,
	}
	if tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		esConfig.Transport = transport
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	breaker := config.Breaker
	breaker.Name = "elasticsearch"
	breaker.Metrics = collector

	e := &ElasticsearchIndexer{
		config: config,
		client: client,
		guard:  reliability.NewGuard(breaker, config.Retry),
		logger: logger.WithComponent("elasticsearch"),
	}
	e.batcher = NewBatcher(config.Batch, e.flush, e.setErr)

	return e, nil
}

// Name returns the extension name
func (e *ElasticsearchIndexer) Name() string { return "elasticsearch" }

// JournalEntry queues the event for indexing.
func (e *ElasticsearchIndexer) JournalEntry(ctx context.Context, n Notification) string {
	if e.closed.Load() {
		return ""
	}

	record, err := NewRecord(n)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to build index document")
		return ""
	}

	if err := e.batcher.Add(ctx, record); err != nil {
		e.setErr(err)
	}

	if err := e.takeErr(); err != nil {
		return e.guard.Status(err, "Elasticsearch: events not indexed")
	}
	return ""
}

func (e *ElasticsearchIndexer) setErr(err error) {
	e.logger.Error().Err(err).Msg("Bulk indexing failed")
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

func (e *ElasticsearchIndexer) takeErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.lastErr
	e.lastErr = nil
	return err
}

// Flush sends queued events now.
func (e *ElasticsearchIndexer) Flush(ctx context.Context) error {
	return e.batcher.Flush(ctx)
}

// flush sends a batch using the Bulk API
func (e *ElasticsearchIndexer) flush(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	body, err := e.bulkBody(records)
	if err != nil {
		return err
	}

	start := time.Now()
	var failed int
	err = e.guard.Do(ctx, func(ctx context.Context) error {
		failed, err = e.bulk(ctx, body)
		return err
	})
	if err != nil {
		return err
	}

	e.logger.Debug().
		Int("documents", len(records)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Bulk request completed")

	if failed > 0 {
		return fmt.Errorf("%d out of %d events failed to index", failed, len(records))
	}
	return nil
}

func (e *ElasticsearchIndexer) bulkBody(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, record := range records {
		meta, err := sonic.Marshal(bulkMeta{Index: bulkAction{
			Index:    IndexName(e.config.Index, record.Timestamp),
			Pipeline: e.config.Pipeline,
		}})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bulk metadata: %w", err)
		}
		doc, err := record.Marshal()
		if err != nil {
			return nil, err
		}

		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// bulk returns the number of documents the cluster rejected.
func (e *ElasticsearchIndexer) bulk(ctx context.Context, body []byte) (int, error) {
	res, err := e.client.Bulk(bytes.NewReader(body), e.client.Bulk.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		err := fmt.Errorf("bulk request returned error: %s", res.Status())
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != 429 {
			return 0, reliability.Permanent(err)
		}
		return 0, err
	}

	var resp bulkResponse
	if err := sonic.ConfigDefault.NewDecoder(res.Body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("failed to parse bulk response: %w", err)
	}

	var failed int
	if resp.Errors {
		for _, item := range resp.Items {
			for _, doc := range item {
				if doc.Status >= 400 {
					failed++
					e.logger.Warn().
						Int("status", doc.Status).
						Str("type", doc.Error.Type).
						Str("reason", doc.Error.Reason).
						Msg("Document rejected")
				}
			}
		}
	}
	return failed, nil
}

// IndexName returns the daily index for an event timestamp.
func IndexName(prefix string, ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	prefix = strings.TrimSuffix(prefix, "-")
	return fmt.Sprintf("%s-%s", prefix, ts.UTC().Format("2006.01.02"))
}

// Close flushes pending events.
func (e *ElasticsearchIndexer) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.batcher.Stop()
	return e.takeErr()
}
