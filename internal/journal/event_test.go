package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNilIsNullEventWithoutError(t *testing.T) {
	res := Parse(nil)
	require.NotNil(t, res.Event)
	assert.False(t, res.Malformed())
	assert.True(t, res.Event.IsNull())
	assert.Equal(t, KindNone, res.Event.Kind)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name   string
		record string
		err    error
	}{
		{"empty", "", ErrInvalidJSON},
		{"garbage", "{not json", ErrInvalidJSON},
		{"truncated", `{"timestamp":"2021-05-27T10:00:00Z","event":"Docked"`, ErrInvalidJSON},
		{"array", `[1,2,3]`, ErrMalformed},
		{"no timestamp", `{"event":"Docked"}`, ErrMissingTimestamp},
		{"bad timestamp", `{"timestamp":"yesterday","event":"Docked"}`, ErrBadTimestamp},
		{"fractional timestamp", `{"timestamp":"2021-05-27T10:00:00.5Z","event":"Docked"}`, ErrBadTimestamp},
		{"offset timestamp", `{"timestamp":"2021-05-27T10:00:00+02:00","event":"Docked"}`, ErrBadTimestamp},
		{"no event", `{"timestamp":"2021-05-27T10:00:00Z"}`, ErrMissingEvent},
		{"numeric event", `{"timestamp":"2021-05-27T10:00:00Z","event":5}`, ErrMissingEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res ParseResult
			assert.NotPanics(t, func() { res = Parse([]byte(tt.record)) })
			require.True(t, res.Malformed())
			assert.True(t, errors.Is(res.Err, tt.err), "got %v", res.Err)
			assert.True(t, errors.Is(res.Err, ErrMalformed))
			assert.True(t, res.Event.IsNull())
		})
	}
}

func TestParsePreservesFieldOrder(t *testing.T) {
	record := `{ "timestamp":"2021-05-27T10:11:12Z", "event":"Docked", "StationName":"Jameson Memorial", "MarketID":128666762, "StationServices":["dock","refuel"] }` + "\n"

	res := Parse([]byte(record))
	require.False(t, res.Malformed(), "%v", res.Err)

	ev := res.Event
	assert.Equal(t, KindDocked, ev.Kind)
	assert.Equal(t, time.Date(2021, 5, 27, 10, 11, 12, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, []string{"timestamp", "event", "StationName", "MarketID", "StationServices"}, ev.Fields.Keys())
	assert.Equal(t, "Jameson Memorial", ev.Get("StationName").String())
	assert.Equal(t, int64(128666762), ev.Get("MarketID").Int())
	assert.False(t, ev.Has("Missing"))
	assert.Equal(t, int64(0), ev.Get("Missing").Int())

	out, err := ev.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, record, string(out))
	assert.Regexp(t, `^\{"timestamp":.*"event":.*"StationName":.*"MarketID":.*"StationServices"`, string(out))
}

func TestEventDecode(t *testing.T) {
	res := Parse([]byte(`{"timestamp":"2021-05-27T10:11:12Z","event":"MarketBuy","Type":"tritium","Count":10,"TotalCost":5000}`))
	require.False(t, res.Malformed())

	var payload struct {
		Type      string
		Count     int64
		TotalCost int64
	}
	require.NoError(t, res.Event.Decode(&payload))
	assert.Equal(t, "tritium", payload.Type)
	assert.Equal(t, int64(10), payload.Count)
	assert.Equal(t, int64(5000), payload.TotalCost)

	assert.Error(t, NullEvent().Decode(&payload))
}

func TestDocumentSetDeleteClone(t *testing.T) {
	d := NewDocument().Set("Slot", "Armour").Set("Item", "python_armour_grade1").Set("Health", 1.0)
	d.Set("Item", "python_armour_grade3")
	assert.Equal(t, []string{"Slot", "Item", "Health"}, d.Keys())

	c := d.Clone()
	assert.True(t, d.Delete("Health"))
	assert.False(t, d.Delete("Health"))
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 3, c.Len())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"Slot":"Armour","Item":"python_armour_grade3"}`, string(out))
}

func TestDocumentNestedOrderSurvives(t *testing.T) {
	d, err := ParseDocument([]byte(`{"b":1,"a":{"z":true,"y":[1,2]}}`))
	require.NoError(t, err)

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":{"z":true,"y":[1,2]}}`, string(out))
	assert.Equal(t, int64(1), d.Result("b").Int())
	assert.True(t, d.Result("a").Get("z").Bool())
}
