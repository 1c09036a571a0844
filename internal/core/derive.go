package core

import (
	"slices"
	"strings"

	"raceview/pkg/domain"
)

// Row pairs a visible record with its index in the loaded dataset. The index
// is the stable identity used for row actions.
type Row struct {
	Index  int           `json:"index"`
	Record domain.Record `json:"record"`
}

// DeriveVisibleRecords returns the records to display for the given state:
// the dataset stably sorted by the active field (if any), then filtered.
func DeriveVisibleRecords(ds domain.Dataset, state ViewState) []domain.Record {
	rows := DeriveVisibleRows(ds, state)
	out := make([]domain.Record, len(rows))
	for i, row := range rows {
		out[i] = row.Record
	}
	return out
}

// DeriveVisibleRows is DeriveVisibleRecords keeping each record's dataset index.
func DeriveVisibleRows(ds domain.Dataset, state ViewState) []Row {
	rows := make([]Row, len(ds))
	for i, rec := range ds {
		rows[i] = Row{Index: i, Record: rec}
	}
	if state.SortField != "" {
		field := state.SortField
		ascending := state.Ascending
		slices.SortStableFunc(rows, func(a, b Row) int {
			c := CompareField(field, a.Record, b.Record)
			if !ascending {
				return -c
			}
			return c
		})
	}
	if state.Filter == "" {
		return rows
	}
	kept := rows[:0]
	for _, row := range rows {
		if Matches(row.Record, state.Filter) {
			kept = append(kept, row)
		}
	}
	return kept
}

// CompareField is the three-way comparison of two records under field f.
// Numeric fields compare as integers, everything else as lowercased text.
func CompareField(f domain.Field, a, b domain.Record) int {
	if f.IsNumeric() {
		x, y := LeadingInt(a.Get(f)), LeadingInt(b.Get(f))
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a.Get(f)), strings.ToLower(b.Get(f)))
}

// Matches reports whether any field of rec contains the lowercase term.
func Matches(rec domain.Record, term string) bool {
	for _, v := range rec.Values() {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

// LeadingInt parses the integer prefix of s the way a browser parseInt does:
// leading whitespace, an optional sign, then decimal digits. Anything without
// digits is 0. Values that overflow int64 saturate.
func LeadingInt(s string) int64 {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	const limit = int64(^uint64(0) >> 1)
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		d := int64(c - '0')
		if n > (limit-d)/10 {
			n = limit
			continue
		}
		n = n*10 + d
	}
	if neg {
		return -n
	}
	return n
}
