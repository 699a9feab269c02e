package models

import (
	"bytes"
	"fmt"

	jsonpool "github.com/ajitpratap0/remotescan/pkg/json"
)

// Column describes one target column requested by the host
type Column struct {
	Name string `yaml:"name" json:"name"`
	Type Type   `yaml:"type" json:"type"`
}

// Row is an ordered list of named, possibly absent, cells. Column names are
// unique; pushing an existing name replaces its cell in place.
type Row struct {
	names []string
	cells []*Cell
}

// NewRow creates an empty row with capacity for n columns
func NewRow(n int) *Row {
	return &Row{names: make([]string, 0, n), cells: make([]*Cell, 0, n)}
}

// Push appends a column, or replaces the cell if the name already exists
func (r *Row) Push(name string, cell *Cell) {
	for i, n := range r.names {
		if n == name {
			r.cells[i] = cell
			return
		}
	}
	r.names = append(r.names, name)
	r.cells = append(r.cells, cell)
}

// Get returns the cell for name and whether the column is present
func (r *Row) Get(name string) (*Cell, bool) {
	for i, n := range r.names {
		if n == name {
			return r.cells[i], true
		}
	}
	return nil, false
}

// Len returns the number of columns
func (r *Row) Len() int { return len(r.names) }

// Names returns the column names in order
func (r *Row) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Cells returns the cells in column order
func (r *Row) Cells() []*Cell {
	out := make([]*Cell, len(r.cells))
	copy(out, r.cells)
	return out
}

// Range calls fn for every column in order until fn returns false
func (r *Row) Range(fn func(name string, cell *Cell) bool) {
	for i, n := range r.names {
		if !fn(n, r.cells[i]) {
			return
		}
	}
}

// Clone returns a deep copy of the row
func (r *Row) Clone() *Row {
	out := NewRow(len(r.names))
	for i, n := range r.names {
		out.Push(n, r.cells[i].Clone())
	}
	return out
}

// Equal reports whether both rows hold the same columns in the same order
func (r *Row) Equal(o *Row) bool {
	if r.Len() != o.Len() {
		return false
	}
	for i, n := range r.names {
		if o.names[i] != n || !r.cells[i].Equal(o.cells[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as a JSON object preserving column order
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsonpool.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.cells[i].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", n, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the row for logs
func (r *Row) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<row: %v>", err)
	}
	return string(b)
}
