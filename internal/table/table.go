// Package table provides the materialized query result: named, equal-length
// arrow columns.
package table

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lakescan/internal/scalar"
)

// Table represents a table of data with typed columns
type Table struct {
	schema  *arrow.Schema
	columns []arrow.Array
	index   map[string]int
	rows    int
}

// New creates a table from columns matching schema. The table takes
// ownership of the arrays.
func New(schema *arrow.Schema, columns []arrow.Array) (*Table, error) {
	if schema.NumFields() != len(columns) {
		return nil, fmt.Errorf("schema has %d fields but %d columns were given", schema.NumFields(), len(columns))
	}
	t := &Table{schema: schema, columns: columns, index: make(map[string]int, len(columns))}
	for i, col := range columns {
		f := schema.Field(i)
		if !arrow.TypeEqual(f.Type, col.DataType()) {
			return nil, fmt.Errorf("column %q has type %s, schema says %s", f.Name, col.DataType(), f.Type)
		}
		if i == 0 {
			t.rows = col.Len()
		} else if col.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", f.Name, col.Len(), t.rows)
		}
		t.index[f.Name] = i
	}
	return t, nil
}

// Empty returns a zero-row table with the given schema.
func Empty(schema *arrow.Schema, mem memory.Allocator) *Table {
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = array.MakeArrayOfNull(mem, f.Type, 0)
	}
	t, _ := New(schema, cols)
	return t
}

// FromRecords concatenates record batches sharing schema into one table.
func FromRecords(schema *arrow.Schema, recs []arrow.Record, mem memory.Allocator) (*Table, error) {
	if len(recs) == 0 {
		return Empty(schema, mem), nil
	}
	cols := make([]arrow.Array, schema.NumFields())
	for i := range cols {
		parts := make([]arrow.Array, len(recs))
		for j, rec := range recs {
			if !rec.Schema().Equal(schema) {
				releaseAll(cols[:i])
				return nil, fmt.Errorf("record %d schema %s does not match %s", j, rec.Schema(), schema)
			}
			parts[j] = rec.Column(i)
		}
		if len(parts) == 1 {
			parts[0].Retain()
			cols[i] = parts[0]
			continue
		}
		col, err := array.Concatenate(parts, mem)
		if err != nil {
			releaseAll(cols[:i])
			return nil, fmt.Errorf("concatenating column %q: %w", schema.Field(i).Name, err)
		}
		cols[i] = col
	}
	return New(schema, cols)
}

func releaseAll(arrs []arrow.Array) {
	for _, a := range arrs {
		if a != nil {
			a.Release()
		}
	}
}

func (t *Table) Schema() *arrow.Schema { return t.schema }

// NumRows returns the number of rows
func (t *Table) NumRows() int { return t.rows }

// Width returns the number of columns
func (t *Table) Width() int { return len(t.columns) }

// ColumnNames returns the names of all columns in order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i := range t.columns {
		names[i] = t.schema.Field(i).Name
	}
	return names
}

// Columns returns the column arrays in order. They stay owned by the table.
func (t *Table) Columns() []arrow.Array {
	return append([]arrow.Array(nil), t.columns...)
}

// Column returns the array for the given column name
func (t *Table) Column(name string) (arrow.Array, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// HasColumn checks if a column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Value returns one cell.
func (t *Table) Value(column string, row int) (scalar.Value, error) {
	col, ok := t.Column(column)
	if !ok {
		return scalar.Null(), fmt.Errorf("column %q does not exist", column)
	}
	if row < 0 || row >= t.rows {
		return scalar.Null(), fmt.Errorf("row %d out of range [0, %d)", row, t.rows)
	}
	return scalar.FromArray(col, row)
}

// Slice returns rows [start, end) sharing buffers with t. Out of range bounds
// are clamped.
func (t *Table) Slice(start, end int) *Table {
	start = max(0, min(start, t.rows))
	end = max(start, min(end, t.rows))
	cols := make([]arrow.Array, len(t.columns))
	for i, c := range t.columns {
		cols[i] = array.NewSlice(c, int64(start), int64(end))
	}
	out, _ := New(t.schema, cols)
	return out
}

// Record returns the table as a single record batch. The caller releases it.
func (t *Table) Record() arrow.Record {
	return array.NewRecord(t.schema, t.columns, int64(t.rows))
}

// Retain increments the reference count of every column.
func (t *Table) Retain() {
	for _, c := range t.columns {
		c.Retain()
	}
}

// Release releases all underlying Arrow memory
func (t *Table) Release() {
	for _, c := range t.columns {
		c.Release()
	}
}

// String returns a string representation of the table's shape and types
func (t *Table) String() string {
	if len(t.columns) == 0 {
		return "Table[empty]"
	}
	parts := []string{fmt.Sprintf("Table[%dx%d]", t.rows, len(t.columns))}
	for i := range t.columns {
		f := t.schema.Field(i)
		parts = append(parts, fmt.Sprintf("  %s: %s", f.Name, f.Type))
	}
	return strings.Join(parts, "\n")
}
