// Package testutil provides common testing utilities shared by the lakescan
// test suites:
//   - checked memory allocators that fail a test on leaked arrow buffers
//   - declarative fixture columns
//   - Parquet dataset fixtures written into an afero filesystem
//   - table assertions
package testutil

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	lsio "github.com/paveg/lakescan/internal/io"
	"github.com/paveg/lakescan/internal/scalar"
	"github.com/paveg/lakescan/internal/table"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryContext provides memory allocator with automatic cleanup.
type TestMemoryContext struct {
	Allocator *memory.CheckedAllocator
	tb        testing.TB
}

// Release asserts every buffer handed out by the allocator was freed.
func (tmc *TestMemoryContext) Release() {
	tmc.Allocator.AssertSize(tmc.tb, 0)
}

// SetupMemoryTest creates a checked allocator for tests.
//
// Example usage:
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{
		Allocator: memory.NewCheckedAllocator(memory.NewGoAllocator()),
		tb:        tb,
	}
}

// Column is a fixture column. A nil entry in Values is a null.
type Column struct {
	Name     string
	Type     arrow.DataType
	Nullable bool
	Values   []any
}

// Required marks the column non-nullable in the written schema.
func (c Column) Required() Column {
	c.Nullable = false
	return c
}

func column(name string, dt arrow.DataType, vals []any) Column {
	return Column{Name: name, Type: dt, Nullable: true, Values: vals}
}

func Bool(name string, vals ...any) Column {
	return column(name, arrow.FixedWidthTypes.Boolean, vals)
}

func Int32(name string, vals ...any) Column {
	return column(name, arrow.PrimitiveTypes.Int32, vals)
}

func Int64(name string, vals ...any) Column {
	return column(name, arrow.PrimitiveTypes.Int64, vals)
}

func Float32(name string, vals ...any) Column {
	return column(name, arrow.PrimitiveTypes.Float32, vals)
}

func Float64(name string, vals ...any) Column {
	return column(name, arrow.PrimitiveTypes.Float64, vals)
}

func String(name string, vals ...any) Column {
	return column(name, arrow.BinaryTypes.String, vals)
}

// Timestamp builds a microsecond UTC timestamp column from time.Time values.
func Timestamp(name string, vals ...any) Column {
	return column(name, arrow.FixedWidthTypes.Timestamp_us, vals)
}

// Record builds a record batch from fixture columns.
func Record(tb testing.TB, mem memory.Allocator, cols ...Column) arrow.Record {
	tb.Helper()
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
	}
	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, nil))
	defer b.Release()

	rows := -1
	for i, c := range cols {
		if rows >= 0 {
			require.Len(tb, c.Values, rows, "column %s length", c.Name)
		}
		rows = len(c.Values)
		for _, v := range c.Values {
			sv, err := scalar.Of(v)
			require.NoError(tb, err)
			require.NoError(tb, scalar.Append(b.Field(i), sv), "column %s", c.Name)
		}
	}
	return b.NewRecord()
}

// FileOption configures fixture file writing.
type FileOption func(*lsio.ParquetOptions)

// WithRowGroupLength splits the file into row groups of at most n rows.
func WithRowGroupLength(n int64) FileOption {
	return func(o *lsio.ParquetOptions) { o.RowGroupLength = n }
}

// WithoutStats writes the file without column statistics.
func WithoutStats() FileOption {
	return func(o *lsio.ParquetOptions) { o.Stats = false }
}

// WriteParquet writes cols as a Parquet file at path in fs.
func WriteParquet(tb testing.TB, fs afero.Fs, path string, cols []Column, opts ...FileOption) {
	tb.Helper()
	rec := Record(tb, memory.NewGoAllocator(), cols...)
	defer rec.Release()

	options := lsio.DefaultParquetOptions()
	for _, opt := range opts {
		opt(&options)
	}

	var buf bytes.Buffer
	require.NoError(tb, lsio.NewParquetWriter(&buf, options).WriteRecord(rec))
	require.NoError(tb, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tb, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

// WriteCorrupt writes a file with a .parquet name and garbage contents.
func WriteCorrupt(tb testing.TB, fs afero.Fs, path string) {
	tb.Helper()
	require.NoError(tb, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tb, afero.WriteFile(fs, path, []byte("PAR1 this is not a parquet file"), 0o644))
}

// ScenarioDataset writes the three-file dataset used across the suites:
//
//	a.parquet: lat, lon, val = [1, 2]
//	b.parquet: lat, lon (no val)
//	c.parquet: val = [10]
func ScenarioDataset(tb testing.TB, fs afero.Fs, root string) {
	tb.Helper()
	WriteParquet(tb, fs, filepath.Join(root, "a.parquet"), []Column{
		Float64("lat", 10.0, 11.0),
		Float64("lon", 20.0, 21.0),
		Float64("val", 1.0, 2.0),
	})
	WriteParquet(tb, fs, filepath.Join(root, "b.parquet"), []Column{
		Float64("lat", 12.0, 13.0),
		Float64("lon", 22.0, 23.0),
	})
	WriteParquet(tb, fs, filepath.Join(root, "c.parquet"), []Column{
		Float64("val", 10.0),
	})
}

// ProfileDataset writes n one-row files, file i holding lat = i%groups and
// val = i. It returns the expected mean of val per lat.
func ProfileDataset(tb testing.TB, fs afero.Fs, root string, n, groups int) map[float64]float64 {
	tb.Helper()
	sums := make(map[float64]float64)
	counts := make(map[float64]float64)
	for i := range n {
		lat := float64(i % groups)
		val := float64(i)
		WriteParquet(tb, fs, filepath.Join(root, fmt.Sprintf("profile-%03d.parquet", i)), []Column{
			Float64("lat", lat),
			Float64("lon", float64(i)*0.5),
			Float64("val", val),
			Timestamp("time", time.Date(2020, 1, 1, 0, 0, i, 0, time.UTC)),
		})
		sums[lat] += val
		counts[lat]++
	}
	means := make(map[float64]float64, len(sums))
	for k, s := range sums {
		means[k] = s / counts[k]
	}
	return means
}

// Values returns a table column as Go values, nil for nulls. Timestamps are
// returned as time.Time.
func Values(tb testing.TB, t *table.Table, name string) []any {
	tb.Helper()
	col, ok := t.Column(name)
	require.True(tb, ok, "column %s should exist", name)
	out := make([]any, col.Len())
	for i := range out {
		v, err := scalar.FromArray(col, i)
		require.NoError(tb, err)
		switch v.Kind() {
		case scalar.KindNull:
			out[i] = nil
		case scalar.KindBool:
			out[i] = v.AsBool()
		case scalar.KindInt:
			out[i] = v.AsInt()
		case scalar.KindFloat:
			out[i] = v.AsFloat()
		case scalar.KindString:
			out[i] = v.AsString()
		case scalar.KindTimestamp:
			out[i] = v.AsTime()
		}
	}
	return out
}

// AssertTableHasColumns verifies that a table has exactly the expected
// columns in order.
func AssertTableHasColumns(tb testing.TB, t *table.Table, expected ...string) {
	tb.Helper()
	require.NotNil(tb, t, "table should not be nil")
	assert.Equal(tb, expected, t.ColumnNames())
}

// RecordValues returns a record column as Go values, in the form Values uses.
func RecordValues(tb testing.TB, rec arrow.Record, name string) []any {
	tb.Helper()
	t, err := table.FromRecords(rec.Schema(), []arrow.Record{rec}, memory.NewGoAllocator())
	require.NoError(tb, err)
	defer t.Release()
	return Values(tb, t, name)
}
