package io_test

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	lsio "github.com/paveg/lakescan/internal/io"
	"github.com/paveg/lakescan/internal/table"
	"github.com/paveg/lakescan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	mem := testutil.SetupMemoryTest(t)
	t.Cleanup(mem.Release)
	rec := testutil.Record(t, mem.Allocator,
		testutil.String("name", "a", nil, "c,d"),
		testutil.Int64("n", 1, 2, nil),
		testutil.Float64("x", 1.5, math.NaN(), 3.0),
		testutil.Timestamp("ts", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), nil, nil),
	)
	defer rec.Release()
	tbl, err := table.FromRecords(rec.Schema(), []arrow.Record{rec}, mem.Allocator)
	require.NoError(t, err)
	t.Cleanup(tbl.Release)
	return tbl
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    lsio.Format
		wantErr bool
	}{
		{"csv", lsio.FormatCSV, false},
		{"JSON", lsio.FormatJSON, false},
		{"ndjson", lsio.FormatJSONL, false},
		{"parquet", lsio.FormatParquet, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := lsio.ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSVWriter(t *testing.T) {
	tbl := sampleTable(t)

	var buf bytes.Buffer
	opts := lsio.DefaultCSVOptions()
	opts.NullValue = "NA"
	require.NoError(t, lsio.NewCSVWriter(&buf, opts).Write(tbl))

	want := "name,n,x,ts\n" +
		"a,1,1.5,2024-01-02T03:04:05Z\n" +
		"NA,2,NaN,NA\n" +
		"\"c,d\",NA,3,NA\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVWriterNoHeader(t *testing.T) {
	tbl := sampleTable(t)

	first := tbl.Slice(0, 1)
	defer first.Release()

	var buf bytes.Buffer
	require.NoError(t, lsio.NewCSVWriter(&buf, lsio.CSVOptions{Delimiter: ';'}).Write(first))
	assert.Equal(t, "a;1;1.5;2024-01-02T03:04:05Z\n", buf.String())
}

func TestJSONWriter(t *testing.T) {
	tbl := sampleTable(t)

	t.Run("array", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := lsio.NewWriter(lsio.FormatJSON, &buf)
		require.NoError(t, err)
		require.NoError(t, w.Write(tbl))
		assert.Equal(t,
			`[{"name":"a","n":1,"x":1.5,"ts":"2024-01-02T03:04:05Z"},`+
				`{"name":null,"n":2,"x":null,"ts":null},`+
				`{"name":"c,d","n":null,"x":3,"ts":null}]`,
			buf.String())
	})

	t.Run("lines", func(t *testing.T) {
		last := tbl.Slice(2, 3)
		defer last.Release()

		var buf bytes.Buffer
		w, err := lsio.NewWriter(lsio.FormatJSONL, &buf)
		require.NoError(t, err)
		require.NoError(t, w.Write(last))
		assert.Equal(t, "{\"name\":\"c,d\",\"n\":null,\"x\":3,\"ts\":null}\n", buf.String())
	})

	t.Run("empty", func(t *testing.T) {
		empty := tbl.Slice(0, 0)
		defer empty.Release()

		var buf bytes.Buffer
		require.NoError(t, lsio.NewJSONWriter(&buf, lsio.JSONOptions{}).Write(empty))
		assert.Equal(t, "[]", buf.String())
	})
}

func TestParquetRoundTrip(t *testing.T) {
	tbl := sampleTable(t)

	for _, codec := range []string{"snappy", "zstd", "gzip", "uncompressed"} {
		t.Run(codec, func(t *testing.T) {
			var buf bytes.Buffer
			opts := lsio.DefaultParquetOptions()
			opts.Compression = codec
			opts.RowGroupLength = 2
			require.NoError(t, lsio.NewParquetWriter(&buf, opts).Write(tbl))

			mem := testutil.SetupMemoryTest(t)
			defer mem.Release()
			back, err := lsio.ReadParquet(context.Background(), bytes.NewReader(buf.Bytes()), mem.Allocator)
			require.NoError(t, err)
			defer back.Release()

			testutil.AssertTableHasColumns(t, back, "name", "n", "x", "ts")
			assert.Equal(t, []any{"a", nil, "c,d"}, testutil.Values(t, back, "name"))
			assert.Equal(t, []any{int64(1), int64(2), nil}, testutil.Values(t, back, "n"))
			x := testutil.Values(t, back, "x")
			assert.Equal(t, 1.5, x[0])
			assert.True(t, math.IsNaN(x[1].(float64)))
		})
	}
}
