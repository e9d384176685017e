package io

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/lakescan/internal/scalar"
	"github.com/paveg/lakescan/internal/table"
)

// Write writes the table to JSON format.
func (w *JSONWriter) Write(t *table.Table) error {
	bw := bufio.NewWriter(w.writer)
	var err error
	switch w.options.Format {
	case JSONArray:
		err = w.writeJSONArray(bw, t)
	case JSONLines:
		err = w.writeJSONLines(bw, t)
	default:
		return fmt.Errorf("unsupported JSON format: %d", w.options.Format)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

func (w *JSONWriter) writeJSONArray(bw *bufio.Writer, t *table.Table) error {
	bw.WriteByte('[')
	for i := range t.NumRows() {
		if i > 0 {
			bw.WriteByte(',')
		}
		if err := writeObject(bw, t, i); err != nil {
			return err
		}
	}
	bw.WriteByte(']')
	return nil
}

func (w *JSONWriter) writeJSONLines(bw *bufio.Writer, t *table.Table) error {
	for i := range t.NumRows() {
		if err := writeObject(bw, t, i); err != nil {
			return err
		}
		bw.WriteByte('\n')
	}
	return nil
}

// writeObject emits row i as an object whose keys follow column order.
func writeObject(bw *bufio.Writer, t *table.Table, row int) error {
	names := t.ColumnNames()
	columns := t.Columns()
	bw.WriteByte('{')
	for j, col := range columns {
		if j > 0 {
			bw.WriteByte(',')
		}
		key, err := json.Marshal(names[j])
		if err != nil {
			return fmt.Errorf("marshaling column name: %w", err)
		}
		bw.Write(key)
		bw.WriteByte(':')

		val, err := json.Marshal(jsonValue(col, row))
		if err != nil {
			return fmt.Errorf("marshaling %s at row %d: %w", names[j], row, err)
		}
		bw.Write(val)
	}
	bw.WriteByte('}')
	return nil
}

// jsonValue converts a cell to a value encoding/json can marshal. NaN and
// infinities have no JSON form and become null.
func jsonValue(arr arrow.Array, row int) interface{} {
	v, err := scalar.FromArray(arr, row)
	if err != nil || v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case scalar.KindBool:
		return v.AsBool()
	case scalar.KindInt:
		return v.AsInt()
	case scalar.KindFloat:
		f := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case scalar.KindString:
		return v.AsString()
	case scalar.KindTimestamp:
		return v.AsTime().Format(time.RFC3339Nano)
	default:
		return nil
	}
}
