// Package domain defines the race record value types, view preferences, and
// the persistence contracts shared by raceview's core and adapters.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field identifies a named attribute of a race record.
type Field string

// Known race record fields.
const (
	// FieldNumber is the race number within a meeting.
	FieldNumber Field = "number"
	// FieldYear is the year the race was run.
	FieldYear     Field = "year"
	FieldVenue    Field = "venue"
	FieldLength   Field = "length"
	FieldName     Field = "name"
	FieldTime     Field = "time"
	FieldProvince Field = "province"
	FieldJockey   Field = "jockey"
	FieldTrainer  Field = "trainer"
	FieldOwner    Field = "owner"
	FieldBreeder  Field = "breeder"
)

var knownFields = []Field{
	FieldNumber, FieldYear, FieldVenue, FieldLength, FieldName, FieldTime,
	FieldProvince, FieldJockey, FieldTrainer, FieldOwner, FieldBreeder,
}

// KnownFields returns the documented record fields in display order.
func KnownFields() []Field {
	return append([]Field(nil), knownFields...)
}

// IsKnown reports whether f is one of the documented record fields.
func (f Field) IsKnown() bool {
	for _, known := range knownFields {
		if f == known {
			return true
		}
	}
	return false
}

// IsNumeric reports whether values of f are compared as integers.
func (f Field) IsNumeric() bool {
	return f == FieldNumber || f == FieldYear
}

// Record is a single race result entry. Values hold the text representation
// of the decoded JSON value. A Record is never modified after decoding.
type Record struct {
	values map[string]string
}

// NewRecord builds a record from field text values. The map is copied.
func NewRecord(values map[string]string) Record {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Record{values: cp}
}

// Get returns the text of field f, or "" when the record lacks it.
func (r Record) Get(f Field) string {
	return r.values[string(f)]
}

// Has reports whether the record carries field f.
func (r Record) Has(f Field) bool {
	_, ok := r.values[string(f)]
	return ok
}

// Len returns the number of fields present.
func (r Record) Len() int {
	return len(r.values)
}

// Values returns the text of every field present, known or not.
func (r Record) Values() []string {
	out := make([]string, 0, len(r.values))
	for _, v := range r.values {
		out = append(out, v)
	}
	return out
}

// Names returns the present field names: known fields first in display
// order, then extra fields sorted by name.
func (r Record) Names() []string {
	out := make([]string, 0, len(r.values))
	for _, f := range knownFields {
		if r.Has(f) {
			out = append(out, string(f))
		}
	}
	var extra []string
	for k := range r.values {
		if !Field(k).IsKnown() {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Map returns a copy of the field values.
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the record as a flat object of strings.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.values)
}

// UnmarshalJSON decodes a JSON object, keeping each value's text form.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record must be a JSON object")
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[k] = textOf(v)
	}
	r.values = values
	return nil
}

func textOf(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case 'n':
		return ""
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return string(trimmed)
		}
		return buf.String()
	default:
		// numbers and booleans keep their literal text
		return strings.TrimSpace(string(trimmed))
	}
}
