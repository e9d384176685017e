package io

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/lakescan/internal/table"
)

// Write writes the table to Parquet format. The underlying writer is closed
// when it implements io.Closer.
func (w *ParquetWriter) Write(t *table.Table) error {
	rec := t.Record()
	defer rec.Release()
	return w.WriteRecord(rec)
}

// WriteRecord writes a single record batch as a Parquet file.
func (w *ParquetWriter) WriteRecord(rec arrow.Record) error {
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec(w.options.Compression)),
		parquet.WithStats(w.options.Stats),
		parquet.WithMaxRowGroupLength(rowGroupLength(w.options.RowGroupLength)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(memory.NewGoAllocator()))

	writer, err := pqarrow.NewFileWriter(rec.Schema(), w.writer, props, arrowProps)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}

	if rec.NumRows() > 0 {
		if err := writer.Write(rec); err != nil {
			writer.Close()
			return fmt.Errorf("writing record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing file writer: %w", err)
	}
	return nil
}

func codec(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "zstd":
		return compress.Codecs.Zstd
	case "uncompressed", "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

func rowGroupLength(n int64) int64 {
	if n <= 0 {
		return DefaultRowGroupLength
	}
	return n
}

// ReadParquet reads a whole Parquet file into a table.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker, mem memory.Allocator) (*table.Table, error) {
	pqReader, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer tbl.Release()

	recs := make([]arrow.Record, 0)
	tr := array.NewTableReader(tbl, -1)
	defer tr.Release()
	for tr.Next() {
		rec := tr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	return table.FromRecords(tbl.Schema(), recs, mem)
}
