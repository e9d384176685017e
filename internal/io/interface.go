// Package io writes materialized query results to external formats.
//
// Writers take a *table.Table and stream it to an io.Writer as CSV, JSON
// (array or lines) or Parquet. The Parquet writer is also how the test
// fixtures and the CLI produce datasets the engine can scan back.
//
// Memory management: writers never take ownership of the table; the caller
// releases it as usual.
package io

import (
	"fmt"
	"io"
	"strings"

	"github.com/paveg/lakescan/internal/table"
)

const (
	// DefaultRowGroupLength bounds the rows per Parquet row group
	DefaultRowGroupLength = 64 * 1024
)

// DataWriter defines the interface for writing tables to various destinations
type DataWriter interface {
	// Write writes the table to the destination
	Write(t *table.Table) error
}

// Format names an output format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts the format names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON, FormatJSONL, FormatParquet:
		return f, nil
	case "ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// NewWriter returns the writer for f with default options.
func NewWriter(f Format, w io.Writer) (DataWriter, error) {
	switch f {
	case FormatCSV:
		return NewCSVWriter(w, DefaultCSVOptions()), nil
	case FormatJSON:
		return NewJSONWriter(w, JSONOptions{Format: JSONArray}), nil
	case FormatJSONL:
		return NewJSONWriter(w, JSONOptions{Format: JSONLines}), nil
	case FormatParquet:
		return NewParquetWriter(w, DefaultParquetOptions()), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", f)
	}
}

// CSVOptions contains configuration options for CSV output
type CSVOptions struct {
	// Delimiter is the field delimiter (default: comma)
	Delimiter rune
	// Header indicates whether the first row contains headers
	Header bool
	// NullValue is written for null cells
	NullValue string
}

// DefaultCSVOptions returns default CSV options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter: ',',
		Header:    true,
	}
}

// CSVWriter writes tables to CSV format
type CSVWriter struct {
	writer  io.Writer
	options CSVOptions
}

// NewCSVWriter creates a new CSV writer with the specified options
func NewCSVWriter(writer io.Writer, options CSVOptions) *CSVWriter {
	return &CSVWriter{
		writer:  writer,
		options: options,
	}
}

// JSONFormat selects between a single JSON array and JSON Lines.
type JSONFormat int

const (
	JSONArray JSONFormat = iota
	JSONLines
)

// JSONOptions contains configuration options for JSON output
type JSONOptions struct {
	Format JSONFormat
}

// JSONWriter writes tables as JSON objects keyed by column name, in column
// order.
type JSONWriter struct {
	writer  io.Writer
	options JSONOptions
}

// NewJSONWriter creates a new JSON writer with the specified options
func NewJSONWriter(writer io.Writer, options JSONOptions) *JSONWriter {
	return &JSONWriter{
		writer:  writer,
		options: options,
	}
}

// ParquetOptions contains configuration options for Parquet output
type ParquetOptions struct {
	// Compression codec name: snappy, gzip, lz4, zstd or uncompressed
	Compression string
	// RowGroupLength is the maximum number of rows per row group
	RowGroupLength int64
	// Stats controls whether column chunk statistics are written
	Stats bool
}

// DefaultParquetOptions returns default Parquet options
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression:    "snappy",
		RowGroupLength: DefaultRowGroupLength,
		Stats:          true,
	}
}

// ParquetWriter writes tables to Parquet format
type ParquetWriter struct {
	writer  io.Writer
	options ParquetOptions
}

// NewParquetWriter creates a new Parquet writer with the specified options
func NewParquetWriter(writer io.Writer, options ParquetOptions) *ParquetWriter {
	return &ParquetWriter{
		writer:  writer,
		options: options,
	}
}
