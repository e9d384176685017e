// Package scan reads one data file into a record batch conformed to the
// canonical schema.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/compute/exec"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	pqschema "github.com/apache/arrow-go/v18/parquet/schema"
	"github.com/paveg/lakescan/internal/catalog"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/predicate"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/spf13/afero"
)

// DefaultBatchSize is the number of rows decoded per record batch.
const DefaultBatchSize = 64 * 1024

// Task describes the scan of one file.
type Task struct {
	File       catalog.FileDescriptor
	Schema     *schema.Schema // canonical schema of the dataset
	Projection []string       // columns returned; empty means all of Schema
	Residual   *predicate.Residual
	BatchSize  int64
	Parallel   bool // decode columns concurrently
	Allocator  memory.Allocator
	FS         afero.Fs
}

func (t Task) allocator() memory.Allocator {
	if t.Allocator == nil {
		return memory.DefaultAllocator
	}
	return t.Allocator
}

func (t Task) batchSize() int64 {
	if t.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return t.BatchSize
}

func (t Task) fs() afero.Fs {
	if t.FS == nil {
		return afero.NewOsFs()
	}
	return t.FS
}

// OutputSchema is the schema of the batches the task produces.
func (t Task) OutputSchema() (*schema.Schema, error) {
	if t.Schema == nil {
		return nil, lserrors.NewInvalidQueryError("Scan", "no target schema")
	}
	if len(t.Projection) == 0 {
		return t.Schema, nil
	}
	return t.Schema.Select(t.Projection...)
}

// readSchema extends out with the residual's columns.
func (t Task) readSchema(out *schema.Schema) (*schema.Schema, error) {
	if t.Residual == nil {
		return out, nil
	}
	fields := out.Fields()
	for _, name := range t.Residual.Columns() {
		if out.Has(name) {
			continue
		}
		f, ok := t.Schema.Field(name)
		if !ok {
			return nil, lserrors.NewColumnNotFoundError("Scan", name, t.Schema.Names())
		}
		fields = append(fields, f)
	}
	return schema.New(fields...)
}

// Batch is the filtered, projected content of one file.
type Batch struct {
	Record   arrow.Record
	Path     string
	RowsRead int64 // rows decoded before filtering
}

func (b *Batch) NumRows() int64 { return b.Record.NumRows() }
func (b *Batch) Release()       { b.Record.Release() }

// Scan reads the task's file completely.
func Scan(ctx context.Context, task Task) (*Batch, error) {
	return run(ctx, task, -1)
}

// ScanLimit stops decoding once n rows have passed the residual filter and
// returns at most n rows.
func ScanLimit(ctx context.Context, task Task, n int64) (*Batch, error) {
	if n < 0 {
		return nil, lserrors.NewInvalidQueryError("ScanLimit", fmt.Sprintf("negative limit %d", n))
	}
	return run(ctx, task, n)
}

type scanner struct {
	task  Task
	mem   memory.Allocator
	read  *arrow.Schema
	out   *arrow.Schema
	limit int64

	parts    []arrow.Record
	rows     int64
	rowsRead int64
}

func run(ctx context.Context, task Task, limit int64) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := task.OutputSchema()
	if err != nil {
		return nil, err
	}
	read, err := task.readSchema(out)
	if err != nil {
		return nil, err
	}

	s := &scanner{
		task:  task,
		mem:   task.allocator(),
		read:  read.ToArrow(),
		out:   out.ToArrow(),
		limit: limit,
	}
	defer s.releaseParts()

	if limit != 0 {
		if err := s.readFile(ctx, read); err != nil {
			return nil, err
		}
	}
	rec, err := s.result()
	if err != nil {
		return nil, lserrors.NewReadError(task.File.Path, err)
	}
	return &Batch{Record: rec, Path: task.File.Path, RowsRead: s.rowsRead}, nil
}

func (s *scanner) readFile(ctx context.Context, read *schema.Schema) error {
	path := s.task.File.Path
	f, err := s.task.fs().Open(path)
	if err != nil {
		return lserrors.NewReadError(path, err)
	}
	rdr, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return lserrors.NewReadError(path, err)
	}
	defer rdr.Close()

	props := pqarrow.ArrowReadProperties{Parallel: s.task.Parallel, BatchSize: s.task.batchSize()}
	fr, err := pqarrow.NewFileReader(rdr, props, s.mem)
	if err != nil {
		return lserrors.NewReadError(path, err)
	}
	fileSchema, err := fr.Schema()
	if err != nil {
		return lserrors.NewReadError(path, err)
	}
	leaves, err := resolveColumns(path, read, fileSchema, rdr.MetaData().Schema)
	if err != nil {
		return lserrors.NewReadError(path, err)
	}

	if len(leaves) == 0 {
		return s.readNulls(ctx, rdr.NumRows())
	}

	rr, err := fr.GetRecordReader(ctx, leaves, nil)
	if err != nil {
		return lserrors.NewReadError(path, err)
	}
	defer rr.Release()

	for rr.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := s.add(ctx, rr.Record())
		if err != nil {
			return lserrors.NewReadError(path, err)
		}
		if done {
			return nil
		}
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return lserrors.NewReadError(path, err)
	}
	return nil
}

// readNulls handles files holding none of the read columns: every row is
// null in every column.
func (s *scanner) readNulls(ctx context.Context, rows int64) error {
	batch := s.task.batchSize()
	for off := int64(0); off < rows; off += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(batch, rows-off)
		cols := make([]arrow.Array, s.read.NumFields())
		for i, f := range s.read.Fields() {
			cols[i] = array.MakeArrayOfNull(s.mem, f.Type, int(n))
		}
		rec := array.NewRecord(s.read, cols, n)
		releaseArrays(cols)
		done, err := s.add(ctx, rec)
		rec.Release()
		if err != nil {
			return lserrors.NewReadError(s.task.File.Path, err)
		}
		if done {
			return nil
		}
	}
	return nil
}

// resolveColumns checks every read field against the file and returns the
// leaf indices to decode.
func resolveColumns(path string, read *schema.Schema, fileSchema *arrow.Schema, pq *pqschema.Schema) ([]int, error) {
	var leaves []int
	for _, target := range read.Fields() {
		idx := fileSchema.FieldIndices(target.Name)
		if len(idx) == 0 {
			if !target.Nullable {
				return nil, lserrors.NewMissingColumnError(path, target.Name)
			}
			continue
		}
		ft := fileSchema.Field(idx[0]).Type
		lt, ok := schema.FromArrowType(ft)
		if !ok || !schema.CanWiden(lt, target.Type) {
			return nil, lserrors.NewSchemaMismatchError(path, target.Name, ft.String(), target.Type.String())
		}
		leaf := pq.ColumnIndexByName(target.Name)
		if leaf < 0 {
			return nil, lserrors.NewSchemaMismatchError(path, target.Name, ft.String(), target.Type.String())
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

// add conforms, filters and projects one decoded batch. done reports that
// the limit has been reached.
func (s *scanner) add(ctx context.Context, rec arrow.Record) (done bool, err error) {
	s.rowsRead += rec.NumRows()

	conformed, err := s.conform(ctx, rec)
	if err != nil {
		return false, err
	}
	defer conformed.Release()

	filtered, err := s.filter(ctx, conformed)
	if err != nil {
		return false, err
	}
	defer filtered.Release()

	if filtered.NumRows() == 0 {
		return false, nil
	}
	projected := s.project(filtered)
	s.parts = append(s.parts, projected)
	s.rows += projected.NumRows()
	return s.limit >= 0 && s.rows >= s.limit, nil
}

// conform returns rec with the read schema: columns coerced to their
// canonical types and absent ones filled with nulls.
func (s *scanner) conform(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	ctx = exec.WithAllocator(ctx, s.mem)
	n := rec.NumRows()
	cols := make([]arrow.Array, s.read.NumFields())
	for i, f := range s.read.Fields() {
		idx := rec.Schema().FieldIndices(f.Name)
		if len(idx) == 0 {
			cols[i] = array.MakeArrayOfNull(s.mem, f.Type, int(n))
			continue
		}
		col, err := coerce(ctx, rec.Column(idx[0]), f.Type)
		if err != nil {
			releaseArrays(cols[:i])
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		cols[i] = col
	}
	out := array.NewRecord(s.read, cols, n)
	releaseArrays(cols)
	return out, nil
}

// coerce widens arr to dt. The result is owned by the caller.
func coerce(ctx context.Context, arr arrow.Array, dt arrow.DataType) (arrow.Array, error) {
	if arrow.TypeEqual(arr.DataType(), dt) {
		arr.Retain()
		return arr, nil
	}
	// int64 to float64 rounds and nanoseconds truncate to microseconds, the
	// same way footer statistics are widened.
	opts := compute.SafeCastOptions(dt)
	opts.AllowFloatTruncate = true
	opts.AllowTimeTruncate = true
	return compute.CastArray(ctx, arr, opts)
}

func (s *scanner) filter(ctx context.Context, rec arrow.Record) (arrow.Record, error) {
	if s.task.Residual == nil {
		rec.Retain()
		return rec, nil
	}
	ctx = exec.WithAllocator(ctx, s.mem)
	sel, err := s.task.Residual.Mask(ctx, rec)
	if err != nil {
		return nil, err
	}
	defer sel.Release()

	return compute.FilterRecordBatch(ctx, rec, sel, compute.DefaultFilterOptions())
}

// project drops filter-only columns.
func (s *scanner) project(rec arrow.Record) arrow.Record {
	if rec.Schema().Equal(s.out) {
		rec.Retain()
		return rec
	}
	cols := make([]arrow.Array, s.out.NumFields())
	for i := range cols {
		cols[i] = rec.Column(i)
	}
	return array.NewRecord(s.out, cols, rec.NumRows())
}

// result concatenates the collected parts into a single record, trimmed to
// the limit.
func (s *scanner) result() (arrow.Record, error) {
	var rec arrow.Record
	switch len(s.parts) {
	case 0:
		cols := make([]arrow.Array, s.out.NumFields())
		for i, f := range s.out.Fields() {
			cols[i] = array.MakeArrayOfNull(s.mem, f.Type, 0)
		}
		rec = array.NewRecord(s.out, cols, 0)
		releaseArrays(cols)
		return rec, nil
	case 1:
		rec = s.parts[0]
		rec.Retain()
	default:
		cols := make([]arrow.Array, s.out.NumFields())
		for i := range cols {
			chunks := make([]arrow.Array, len(s.parts))
			for j, p := range s.parts {
				chunks[j] = p.Column(i)
			}
			col, err := array.Concatenate(chunks, s.mem)
			if err != nil {
				releaseArrays(cols[:i])
				return nil, fmt.Errorf("concatenating column %q: %w", s.out.Field(i).Name, err)
			}
			cols[i] = col
		}
		rec = array.NewRecord(s.out, cols, s.rows)
		releaseArrays(cols)
	}

	if s.limit >= 0 && rec.NumRows() > s.limit {
		sliced := rec.NewSlice(0, s.limit)
		rec.Release()
		rec = sliced
	}
	return rec, nil
}

func (s *scanner) releaseParts() {
	for _, p := range s.parts {
		p.Release()
	}
	s.parts = nil
}

func releaseArrays(cols []arrow.Array) {
	for _, c := range cols {
		if c != nil {
			c.Release()
		}
	}
}
