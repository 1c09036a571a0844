package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Dataset is the ordered collection of records produced by one successful
// load. It is replaced wholesale, never edited in place.
type Dataset []Record

// ErrNotArray is returned when a data source does not hold a JSON array.
var ErrNotArray = errors.New("dataset: payload is not a JSON array")

// DecodeDataset parses a JSON array of record objects.
func DecodeDataset(r io.Reader) (Dataset, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, ErrNotArray
	}
	ds := Dataset{}
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(ds), err)
		}
		ds = append(ds, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode dataset: trailing data after array")
	}
	return ds, nil
}

// Len returns the number of records.
func (d Dataset) Len() int { return len(d) }

// At returns the record at index i and whether the index is in range.
func (d Dataset) At(i int) (Record, bool) {
	if i < 0 || i >= len(d) {
		return Record{}, false
	}
	return d[i], true
}
