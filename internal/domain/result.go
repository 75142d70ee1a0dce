package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ResultRow is one node of the attribution tree. SubRows is at most one level deep.
type ResultRow struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Cost    float64 `json:"cost"`
	SubRows *RowMap `json:"sub_rows,omitempty"`
}

// RowMap is an insertion-ordered map of rows. The first insertion of a key fixes its position.
type RowMap struct {
	keys []string
	rows map[string]*ResultRow
}

func NewRowMap() *RowMap {
	return &RowMap{rows: make(map[string]*ResultRow)}
}

// Get returns the row stored under key
func (m *RowMap) Get(key string) (*ResultRow, bool) {
	if m == nil {
		return nil, false
	}
	row, ok := m.rows[key]
	return row, ok
}

// Upsert returns the row for key, appending a zero-cost row labelled key if absent
func (m *RowMap) Upsert(key string) *ResultRow {
	if row, ok := m.rows[key]; ok {
		return row
	}
	row := &ResultRow{Key: key, Label: key}
	m.put(key, row)
	return row
}

// Set stores row under row.Key, keeping the original position of an existing key
func (m *RowMap) Set(row *ResultRow) {
	m.put(row.Key, row)
}

func (m *RowMap) put(key string, row *ResultRow) {
	if m.rows == nil {
		m.rows = make(map[string]*ResultRow)
	}
	if _, ok := m.rows[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.rows[key] = row
}

func (m *RowMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order
func (m *RowMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Rows returns the rows in insertion order
func (m *RowMap) Rows() []*ResultRow {
	if m == nil {
		return nil
	}
	out := make([]*ResultRow, 0, len(m.keys))
	for _, key := range m.keys {
		out = append(out, m.rows[key])
	}
	return out
}

// TotalCost sums the cost of the top-level rows
func (m *RowMap) TotalCost() float64 {
	var total float64
	for _, row := range m.Rows() {
		total += row.Cost
	}
	return total
}

// MarshalJSON encodes the map as a JSON object with members in insertion order
func (m *RowMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.rows[key])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal row %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the document order of its members
func (m *RowMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row map: expected JSON object, got %v", tok)
	}

	m.keys = nil
	m.rows = make(map[string]*ResultRow)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row map: expected string key, got %v", tok)
		}

		var row ResultRow
		if err := dec.Decode(&row); err != nil {
			return fmt.Errorf("row map: failed to decode row %q: %w", key, err)
		}
		m.put(key, &row)
	}

	// closing brace
	_, err = dec.Token()
	return err
}

// EngineResult is the output of one attribution query
type EngineResult struct {
	TotalCost float64 `json:"total_cost"`
	TableRows *RowMap `json:"table_rows"`
}

// TotalsRow is recomputed from TableRows on every call
func (r EngineResult) TotalsRow() ResultRow {
	return ResultRow{
		Key:   "totals",
		Label: "Total",
		Cost:  r.TableRows.TotalCost(),
	}
}

func (r EngineResult) MarshalJSON() ([]byte, error) {
	type alias EngineResult
	return json.Marshal(struct {
		alias
		TotalsRow ResultRow `json:"totals_row"`
	}{
		alias:     alias(r),
		TotalsRow: r.TotalsRow(),
	})
}

// AttributionReport is the payload pushed to the export sink
type AttributionReport struct {
	Query       Query         `json:"query"`
	Result      *EngineResult `json:"result"`
	GeneratedAt time.Time     `json:"generated_at"`
}
