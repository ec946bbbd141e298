package extension

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/reliability"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/security"
)

type fakeCluster struct {
	mu       sync.Mutex
	bodies   [][]byte
	status   int
	response string
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	if strings.HasSuffix(r.URL.Path, "/_bulk") {
		c.bodies = append(c.bodies, body)
	}
	status, response := c.status, c.response
	c.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	if response == "" {
		response = `{"took":1,"errors":false,"items":[]}`
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(response))
}

func (c *fakeCluster) requests() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.bodies...)
}

func newTestIndexer(t *testing.T, cluster *fakeCluster, batch int) *ElasticsearchIndexer {
	t.Helper()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	config := DefaultElasticsearchConfig()
	config.Addresses = []string{srv.URL}
	config.Index = "journal"
	config.Batch = BatcherConfig{MaxBatchSize: batch, FlushInterval: time.Hour}
	config.Retry = reliability.RetryConfig{MaxRetries: 0}

	e, err := NewElasticsearchIndexer(config, quiet(), nil)
	require.NoError(t, err)
	return e
}

func bulkLines(t *testing.T, body []byte) []string {
	t.Helper()
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestElasticsearchBulkIndexesDaily(t *testing.T) {
	cluster := &fakeCluster{}
	e := newTestIndexer(t, cluster, 2)

	jump := `{"timestamp":"2024-05-02T01:00:00Z","event":"FSDJump","StarSystem":"Sol"}`
	assert.Empty(t, e.JournalEntry(context.Background(), notification(t, dockedLine)))
	assert.Empty(t, e.JournalEntry(context.Background(), notification(t, jump)))

	requests := cluster.requests()
	require.Len(t, requests, 1)

	lines := bulkLines(t, requests[0])
	require.Len(t, lines, 4)
	assert.Equal(t, "journal-2024.05.01", gjson.Get(lines[0], "index._index").String())
	assert.Equal(t, "Docked", gjson.Get(lines[1], "kind").String())
	assert.Equal(t, "journal-2024.05.02", gjson.Get(lines[2], "index._index").String())
	assert.Equal(t, "Sol", gjson.Get(lines[3], "event.StarSystem").String())

	require.NoError(t, e.Close())
}

func TestElasticsearchCloseFlushesPending(t *testing.T) {
	cluster := &fakeCluster{}
	e := newTestIndexer(t, cluster, 100)

	assert.Empty(t, e.JournalEntry(context.Background(), notification(t, dockedLine)))
	assert.Empty(t, cluster.requests())

	require.NoError(t, e.Close())
	assert.Len(t, cluster.requests(), 1)
	assert.NoError(t, e.Close())
}

func TestElasticsearchRejectedDocumentsReported(t *testing.T) {
	cluster := &fakeCluster{
		response: `{"took":1,"errors":true,"items":[{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}}]}`,
	}
	e := newTestIndexer(t, cluster, 1)

	status := e.JournalEntry(context.Background(), notification(t, dockedLine))

	assert.Equal(t, "Elasticsearch: events not indexed", status)

	cluster.mu.Lock()
	cluster.response = ""
	cluster.mu.Unlock()
	assert.Empty(t, e.JournalEntry(context.Background(), notification(t, dockedLine)), "status clears once indexing recovers")
	require.NoError(t, e.Close())
}

func TestElasticsearchServerErrorReported(t *testing.T) {
	cluster := &fakeCluster{status: http.StatusServiceUnavailable, response: `{"error":"unavailable"}`}
	e := newTestIndexer(t, cluster, 1)

	assert.Equal(t, "Elasticsearch: events not indexed", e.JournalEntry(context.Background(), notification(t, dockedLine)))
	_ = e.Close()
}

func TestIndexName(t *testing.T) {
	ts := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "edjournal-2024.12.31", IndexName("edjournal", ts))
	assert.Equal(t, "edjournal-2024.12.31", IndexName("edjournal-", ts))

	local := time.Date(2025, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "edjournal-2025.01.01", IndexName("edjournal", local))
}

func TestNewElasticsearchIndexerValidation(t *testing.T) {
	config := DefaultElasticsearchConfig()
	config.Addresses = nil
	_, err := NewElasticsearchIndexer(config, quiet(), nil)
	assert.Error(t, err)

	config = DefaultElasticsearchConfig()
	config.Index = ""
	_, err = NewElasticsearchIndexer(config, quiet(), nil)
	assert.Error(t, err)
}

func TestNewElasticsearchIndexerTLS(t *testing.T) {
	config := DefaultElasticsearchConfig()
	config.TLS = security.TLSConfig{Enabled: true, CAFile: filepath.Join(t.TempDir(), "missing.pem")}
	_, err := NewElasticsearchIndexer(config, quiet(), nil)
	assert.ErrorContains(t, err, "TLS")
}
