package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawRow is one source record: an ordered mapping from column name to value.
// Column names are trimmed at construction and looked up case-insensitively.
// A RawRow is never mutated after construction.
type RawRow struct {
	columns []string
	values  []string
	index   map[string]int
}

// NormalizeColumn returns the lookup form of a column name.
func NormalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NewRawRow builds a row from a header and the matching values.
// Missing values are treated as empty; surplus values are dropped.
// When two columns normalize to the same name the first one wins.
func NewRawRow(header, values []string) RawRow {
	row := RawRow{
		columns: make([]string, 0, len(header)),
		values:  make([]string, 0, len(header)),
		index:   make(map[string]int, len(header)),
	}
	for i, name := range header {
		key := NormalizeColumn(name)
		if _, dup := row.index[key]; dup {
			continue
		}
		val := ""
		if i < len(values) {
			val = values[i]
		}
		row.index[key] = len(row.columns)
		row.columns = append(row.columns, strings.TrimSpace(name))
		row.values = append(row.values, val)
	}
	return row
}

// Get returns the value for a column and whether the column exists.
func (r RawRow) Get(column string) (string, bool) {
	i, ok := r.index[NormalizeColumn(column)]
	if !ok {
		return "", false
	}
	return r.values[i], true
}

// Value returns the value for a column, or "" when absent.
func (r RawRow) Value(column string) string {
	v, _ := r.Get(column)
	return v
}

// Columns returns the trimmed column names in source order.
func (r RawRow) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r RawRow) Len() int { return len(r.columns) }

// Each calls fn for every column in source order.
func (r RawRow) Each(fn func(column, value string)) {
	for i, c := range r.columns {
		fn(c, r.values[i])
	}
}

// MarshalJSON encodes the row as a JSON object preserving column order.
func (r RawRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the row, keeping key order.
func (r *RawRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = RawRow{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("raw row: expected JSON object, got %v", tok)
	}

	var header, values []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("raw row: expected string key, got %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("raw row: value for %q: %w", key, err)
		}
		header = append(header, key)
		values = append(values, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = NewRawRow(header, values)
	return nil
}
