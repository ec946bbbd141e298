package parser

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/dlq"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
)

func TestParseValidRecord(t *testing.T) {
	p := New()

	ev := p.Parse([]byte(`{"timestamp":"2021-05-20T10:00:00Z","event":"Docked","StationName":"Jameson Memorial"}`), "current")

	require.NotNil(t, ev)
	assert.Equal(t, journal.KindDocked, ev.Kind)
	assert.Equal(t, "Jameson Memorial", ev.Get("StationName").String())
}

func TestParseNilRecord(t *testing.T) {
	collector := metrics.NewCollector()
	p := New(WithMetrics(collector))

	ev := p.Parse(nil, "stored")

	require.NotNil(t, ev)
	assert.True(t, ev.IsNull())
	assert.Zero(t, testutil.CollectAndCount(collector.ParseFailures))
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name   string
		record string
		reason string
	}{
		{"truncated", `{"timestamp":"2021-05-20T10:00:00Z","event":`, ReasonInvalidJSON},
		{"not an object", `[1,2,3]`, ReasonOther},
		{"no timestamp", `{"event":"Docked"}`, ReasonMissingTimestamp},
		{"bad timestamp", `{"timestamp":"yesterday","event":"Docked"}`, ReasonBadTimestamp},
		{"no event", `{"timestamp":"2021-05-20T10:00:00Z"}`, ReasonMissingEvent},
		{"numeric event", `{"timestamp":"2021-05-20T10:00:00Z","event":7}`, ReasonMissingEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := metrics.NewCollector()
			q, err := dlq.New(dlq.Config{Dir: t.TempDir()})
			require.NoError(t, err)
			defer q.Close()

			var logs bytes.Buffer
			p := New(
				WithLogger(logging.New(logging.Config{Level: "warn", Output: &logs})),
				WithMetrics(collector),
				WithDeadLetterQueue(q),
			)

			ev := p.Parse([]byte(tt.record), "current")

			require.NotNil(t, ev)
			assert.True(t, ev.IsNull())
			assert.Equal(t, 1.0, testutil.ToFloat64(collector.ParseFailures.WithLabelValues(tt.reason)))
			assert.Equal(t, 1.0, testutil.ToFloat64(collector.DLQEventsWritten))
			assert.Contains(t, logs.String(), "Skipping malformed journal record")

			entries, err := q.GetAll()
			require.NoError(t, err)
			require.Len(t, entries, 1)
			entry := entries[0]
			assert.Equal(t, tt.record, entry.Record)
			assert.Equal(t, "current", entry.Role)
			assert.Equal(t, tt.reason, entry.Metadata["reason"])
		})
	}
}

func TestWarningsAreRateLimited(t *testing.T) {
	var logs bytes.Buffer
	p := New(
		WithLogger(logging.New(logging.Config{Level: "warn", Output: &logs})),
		WithWarnRate(0, 2),
	)

	for i := 0; i < 10; i++ {
		p.Parse([]byte("garbage"), "current")
	}

	assert.Equal(t, 2, bytes.Count(logs.Bytes(), []byte("Skipping malformed journal record")))
}

func TestTruncate(t *testing.T) {
	long := bytes.Repeat([]byte("x"), maxLogged+10)
	assert.Len(t, truncate(long), maxLogged+3)
	assert.Equal(t, "short", truncate([]byte("short")))
}
