package journal

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// TimestampLayout is the journal's timestamp format.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Sentinel parse errors. All of them wrap ErrMalformed.
var (
	ErrMalformed        = errors.New("malformed journal record")
	ErrInvalidJSON      = fmt.Errorf("%w: invalid JSON", ErrMalformed)
	ErrMissingTimestamp = fmt.Errorf("%w: missing timestamp", ErrMalformed)
	ErrBadTimestamp     = fmt.Errorf("%w: unparseable timestamp", ErrMalformed)
	ErrMissingEvent     = fmt.Errorf("%w: missing event", ErrMalformed)
)

// Event is a parsed journal record.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Fields    *Document
	Raw       []byte
}

// NullEvent returns the event used for nil and malformed records.
func NullEvent() *Event {
	return &Event{Kind: KindNone, Fields: NewDocument()}
}

// IsNull reports whether this is the null event.
func (e *Event) IsNull() bool {
	return e == nil || e.Kind == KindNone
}

// Get returns a field by gjson path. Absent fields yield an empty result,
// whose Int, Float, String and Bool accessors return zero values.
func (e *Event) Get(path string) gjson.Result {
	if e == nil || len(e.Raw) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.Raw, path)
}

// Has reports whether the top level field is present.
func (e *Event) Has(key string) bool {
	return e.Get(key).Exists()
}

// Decode unmarshals the raw record into v.
func (e *Event) Decode(v any) error {
	if e == nil || len(e.Raw) == 0 {
		return fmt.Errorf("no payload for event %q", e.kind())
	}
	if err := sonic.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", e.kind(), err)
	}
	return nil
}

func (e *Event) kind() Kind {
	if e == nil {
		return KindNone
	}
	return e.Kind
}

// MarshalJSON writes the event fields in their original order.
func (e *Event) MarshalJSON() ([]byte, error) {
	if e.IsNull() {
		return []byte(`{"event":null}`), nil
	}
	return e.Fields.MarshalJSON()
}

// ParseResult is the outcome of Parse: either an event, or the null event
// together with the reason the record was malformed.
type ParseResult struct {
	Event *Event
	Err   error
}

// Malformed reports whether the record could not be parsed.
func (r ParseResult) Malformed() bool {
	return r.Err != nil
}

// Parse decodes one raw record. A nil record is the synthetic no-op tick and
// parses to the null event without error. Parse never panics.
func Parse(record []byte) (res ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ParseResult{Event: NullEvent(), Err: fmt.Errorf("%w: %v", ErrMalformed, r)}
		}
	}()

	if record == nil {
		return ParseResult{Event: NullEvent()}
	}

	data := bytes.TrimSpace(record)
	if !gjson.ValidBytes(data) {
		return malformed(ErrInvalidJSON)
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return malformed(fmt.Errorf("%w: %v", ErrMalformed, ErrNotObject))
	}

	ts := root.Get("timestamp")
	if !ts.Exists() {
		return malformed(ErrMissingTimestamp)
	}
	when, err := time.Parse(TimestampLayout, ts.String())
	if err != nil {
		return malformed(fmt.Errorf("%w: %v", ErrBadTimestamp, err))
	}

	kind := root.Get("event")
	if kind.Type != gjson.String || kind.String() == "" {
		return malformed(ErrMissingEvent)
	}

	raw := make([]byte, len(data))
	copy(raw, data)

	fields, err := ParseDocument(raw)
	if err != nil {
		return malformed(fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	return ParseResult{
		Event: &Event{
			Kind:      Kind(kind.String()),
			Timestamp: when.UTC(),
			Fields:    fields,
			Raw:       raw,
		},
	}
}

func malformed(err error) ParseResult {
	return ParseResult{Event: NullEvent(), Err: err}
}

// FormatTimestamp renders t in the journal's timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
