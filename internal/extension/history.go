package extension

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        INTEGER NOT NULL,
	kind      TEXT    NOT NULL,
	commander TEXT    NOT NULL DEFAULT '',
	beta      INTEGER NOT NULL DEFAULT 0,
	system    TEXT    NOT NULL DEFAULT '',
	station   TEXT    NOT NULL DEFAULT '',
	event     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS events_commander_ts ON events (commander, ts);
`

// HistoryEntry is one stored event.
type HistoryEntry struct {
	ID        int64
	Timestamp time.Time
	Kind      string
	Commander string
	Beta      bool
	System    string
	Station   string
	Event     string
}

// History appends every event to a local SQLite database.
type History struct {
	db     *sql.DB
	logger *logging.Logger
}

// OpenHistory opens or creates the database at path.
func OpenHistory(path string, logger *logging.Logger) (*History, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if logger == nil {
		logger = logging.Global()
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &History{db: db, logger: logger.WithComponent("history")}, nil
}

// Name returns the extension name
func (h *History) Name() string { return "history" }

// JournalEntry stores the event.
func (h *History) JournalEntry(ctx context.Context, n Notification) string {
	record, err := NewRecord(n)
	if err != nil {
		return ""
	}
	if err := h.Append(ctx, record); err != nil {
		h.logger.Error().Err(err).Str("kind", record.Kind).Msg("Failed to store event")
		return "History: event not stored"
	}
	return ""
}

// Append inserts one record.
func (h *History) Append(ctx context.Context, record *Record) error {
	beta := 0
	if record.Beta {
		beta = 1
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO events (ts, kind, commander, beta, system, station, event) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.UTC().UnixMilli(), record.Kind, record.Commander, beta,
		record.System, record.Station, string(record.Event),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for commander, newest first. An empty
// commander matches every commander.
func (h *History) Recent(ctx context.Context, commander string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, ts, kind, commander, beta, system, station, event FROM events`
	args := []any{}
	if commander != "" {
		query += ` WHERE commander = ?`
		args = append(args, commander)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e    HistoryEntry
			ts   int64
			beta int
		)
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.Commander, &beta, &e.System, &e.Station, &e.Event); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Beta = beta != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored events.
func (h *History) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}
