package extension

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
)

// Record is the wire form of a Notification used by the publishing
// extensions.
type Record struct {
	Commander string          `json:"commander"`
	Beta      bool            `json:"beta"`
	System    string          `json:"system,omitempty"`
	Station   string          `json:"station,omitempty"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Event     journal.Raw `json:"event"`
}

// NewRecord flattens n. The event is embedded as it appeared in the journal.
func NewRecord(n Notification) (*Record, error) {
	if n.Event == nil || n.Event.IsNull() {
		return nil, fmt.Errorf("no event to publish")
	}

	raw := journal.Raw(n.Event.Raw)
	if len(raw) == 0 {
		data, err := n.Event.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
		raw = data
	}

	return &Record{
		Commander: n.Commander,
		Beta:      n.IsBeta,
		System:    n.System,
		Station:   n.Station,
		Kind:      string(n.Event.Kind),
		Timestamp: n.Event.Timestamp,
		Event:     raw,
	}, nil
}

// Marshal encodes the record as one line of JSON.
func (r *Record) Marshal() ([]byte, error) {
	data, err := sonic.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}
