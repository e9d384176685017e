package io

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paveg/lakescan/internal/scalar"
	"github.com/paveg/lakescan/internal/table"
)

// Write writes the table to CSV format
func (w *CSVWriter) Write(t *table.Table) error {
	csvWriter := csv.NewWriter(w.writer)
	csvWriter.Comma = w.options.Delimiter

	if w.options.Header {
		if err := csvWriter.Write(t.ColumnNames()); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
	}

	columns := t.Columns()
	row := make([]string, len(columns))
	for i := range t.NumRows() {
		for j, col := range columns {
			row[j] = w.valueAsString(col, i)
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// valueAsString extracts a value from a column at the given index as a string
func (w *CSVWriter) valueAsString(arr arrow.Array, index int) string {
	if arr.IsNull(index) {
		return w.options.NullValue
	}
	switch typedArr := arr.(type) {
	case *array.String:
		return typedArr.Value(index)
	case *array.Int64:
		return strconv.FormatInt(typedArr.Value(index), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(typedArr.Value(index)), 10)
	case *array.Float64:
		return strconv.FormatFloat(typedArr.Value(index), 'g', -1, 64)
	case *array.Float32:
		return strconv.FormatFloat(float64(typedArr.Value(index)), 'g', -1, 32)
	case *array.Boolean:
		return strconv.FormatBool(typedArr.Value(index))
	case *array.Timestamp:
		v, err := scalar.FromArray(arr, index)
		if err != nil {
			return ""
		}
		return v.AsTime().Format(time.RFC3339Nano)
	default:
		return arr.ValueStr(index)
	}
}
