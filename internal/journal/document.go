package journal

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// ErrNotObject is returned when a document is decoded from anything but a JSON object.
var ErrNotObject = errors.New("not a JSON object")

// Field is a single key/value pair of a Document.
type Field struct {
	Key   string
	Value any
}

// Raw is an encoded JSON value that is written out unchanged.
type Raw []byte

// MarshalJSON returns r itself.
func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON keeps a copy of data.
func (r *Raw) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// Document is a JSON object that keeps the order its keys were set in.
// Values decoded from JSON are kept as Raw so nested objects keep their
// original order too.
type Document struct {
	fields []Field
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{}
}

// ParseDocument decodes a JSON object into a Document.
func ParseDocument(data []byte) (*Document, error) {
	d := NewDocument()
	if err := d.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) index(key string) int {
	for i := range d.fields {
		if d.fields[i].Key == key {
			return i
		}
	}
	return -1
}

// Set replaces the value of key in place, or appends it.
func (d *Document) Set(key string, value any) *Document {
	if i := d.index(key); i >= 0 {
		d.fields[i].Value = value
		return d
	}
	d.fields = append(d.fields, Field{Key: key, Value: value})
	return d
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	if i := d.index(key); i >= 0 {
		return d.fields[i].Value, true
	}
	return nil, false
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Result returns the value under key as a gjson result, which gives typed
// access with zero-value defaults for absent or mistyped values.
func (d *Document) Result(key string) gjson.Result {
	v, ok := d.Get(key)
	if !ok {
		return gjson.Result{}
	}
	if raw, ok := v.(Raw); ok {
		return gjson.ParseBytes(raw)
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(data)
}

// String returns the value under key as a string, "" when absent.
func (d *Document) String(key string) string {
	v, ok := d.Get(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return d.Result(key).String()
}

// Delete removes key and reports whether it was present.
func (d *Document) Delete(key string) bool {
	i := d.index(key)
	if i < 0 {
		return false
	}
	d.fields = append(d.fields[:i], d.fields[i+1:]...)
	return true
}

// Keys returns the keys in order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the fields in order.
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Clone returns a deep copy. Nested documents are cloned; raw values are
// immutable and shared.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := &Document{fields: make([]Field, len(d.fields))}
	for i, f := range d.fields {
		if nested, ok := f.Value.(*Document); ok {
			f.Value = nested.Clone()
		}
		c.fields[i] = f
	}
	return c
}

// MarshalJSON writes the fields in order.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := sonic.Marshal(f.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to encode key %q: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := sonic.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", f.Key, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the document with the members of a JSON object.
func (d *Document) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return ErrNotObject
	}

	d.fields = d.fields[:0]
	root.ForEach(func(key, value gjson.Result) bool {
		raw := make(Raw, len(value.Raw))
		copy(raw, value.Raw)
		d.Set(key.String(), raw)
		return true
	})
	return nil
}
