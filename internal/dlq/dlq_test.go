package dlq

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const badRecord = `{"timestamp":"2021-05-20T10:00:00Z","event":`

func open(t *testing.T, cfg Config) *Queue {
	t.Helper()
	q, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return q
}

func TestNew(t *testing.T) {
	q := open(t, Config{Dir: t.TempDir(), MaxSize: 100, MaxAge: time.Hour})
	defer q.Close()

	if q.Size() != 0 {
		t.Errorf("initial size = %d, want 0", q.Size())
	}
	if s := q.Stats(); s.MaxSize != 100 {
		t.Errorf("MaxSize = %d, want 100", s.MaxSize)
	}
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestEnqueue(t *testing.T) {
	q := open(t, Config{Dir: t.TempDir()})
	defer q.Close()

	testErr := errors.New("unexpected end of JSON input")
	if err := q.Enqueue([]byte(badRecord), "current", testErr, map[string]string{"reason": "invalid_json"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	entries, err := q.GetAll()
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Record != badRecord || e.Role != "current" || e.Error != testErr.Error() {
		t.Errorf("entry = %+v", e)
	}
	if e.Metadata["reason"] != "invalid_json" {
		t.Errorf("metadata = %v", e.Metadata)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestGetAllReturnsCopy(t *testing.T) {
	q := open(t, Config{Dir: t.TempDir()})
	defer q.Close()

	q.Enqueue([]byte("a"), "current", nil, nil)
	entries, _ := q.GetAll()
	entries[0].Record = "changed"

	again, _ := q.GetAll()
	if again[0].Record != "a" {
		t.Error("queue modified through GetAll result")
	}
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	q := open(t, Config{Dir: t.TempDir(), MaxSize: 3})
	defer q.Close()

	for _, r := range []string{"1", "2", "3", "4", "5"} {
		if err := q.Enqueue([]byte(r), "current", nil, nil); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", r, err)
		}
	}

	entries, _ := q.GetAll()
	var got []string
	for _, e := range entries {
		got = append(got, e.Record)
	}
	if strings.Join(got, ",") != "3,4,5" {
		t.Errorf("entries = %v, want 3,4,5", got)
	}
	if s := q.Stats(); s.Evicted != 2 || s.Enqueued != 5 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPersistenceAppendsAndReloads(t *testing.T) {
	dir := t.TempDir()

	q := open(t, Config{Dir: dir})
	q.Enqueue([]byte("first"), "current", errors.New("bad"), nil)
	if err := q.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	q.Enqueue([]byte("second"), "stored", nil, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("file has %d lines, want 2", lines)
	}

	q2 := open(t, Config{Dir: dir})
	defer q2.Close()
	entries, _ := q2.GetAll()
	if len(entries) != 2 || entries[0].Record != "first" || entries[1].Role != "stored" {
		t.Errorf("reloaded entries = %+v", entries)
	}
}

func TestTornLineDropped(t *testing.T) {
	dir := t.TempDir()
	content := `{"record":"ok","role":"current","error":"","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}` + "\n" + `{"record":"tor`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	q := open(t, Config{Dir: dir})
	if q.Size() != 1 {
		t.Errorf("size = %d, want 1", q.Size())
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	if strings.Contains(string(data), `"tor`) {
		t.Error("torn line survived the rewrite")
	}
}

func TestExpiredEntriesDroppedOnLoad(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	fresh := time.Now().UTC().Format(time.RFC3339)
	content := `{"record":"old","role":"current","error":"","timestamp":"` + old + `"}` + "\n" +
		`{"record":"fresh","role":"current","error":"","timestamp":"` + fresh + `"}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	q := open(t, Config{Dir: dir, MaxAge: 24 * time.Hour})
	defer q.Close()

	entries, _ := q.GetAll()
	if len(entries) != 1 || entries[0].Record != "fresh" {
		t.Errorf("entries = %+v", entries)
	}
	if q.Stats().Expired != 1 {
		t.Errorf("expired = %d, want 1", q.Stats().Expired)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	q := open(t, Config{Dir: dir})
	defer q.Close()

	q.Enqueue([]byte("a"), "current", nil, nil)
	q.Enqueue([]byte("b"), "current", nil, nil)
	if err := q.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if q.Size() != 0 {
		t.Errorf("size after clear = %d", q.Size())
	}
	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	if len(data) != 0 {
		t.Errorf("file after clear = %q", data)
	}
}

func TestPeriodicFlush(t *testing.T) {
	dir := t.TempDir()
	q := open(t, Config{Dir: dir, FlushInterval: 20 * time.Millisecond})
	defer q.Close()

	q.Enqueue([]byte(badRecord), "current", nil, nil)

	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(filepath.Join(dir, FileName))
		if strings.Contains(string(data), "timestamp") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("entry was never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClose(t *testing.T) {
	q := open(t, Config{Dir: t.TempDir()})

	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() = %v, want ErrClosed", err)
	}
	if err := q.Enqueue([]byte("x"), "current", nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after close = %v, want ErrClosed", err)
	}
	if _, err := q.GetAll(); !errors.Is(err, ErrClosed) {
		t.Errorf("GetAll after close = %v, want ErrClosed", err)
	}
}
