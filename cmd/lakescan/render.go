package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/paveg/lakescan"
	"github.com/paveg/lakescan/internal/scalar"
	"github.com/paveg/lakescan/internal/table"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	return tw
}

// renderTable prints t with nulls shown as "null".
func renderTable(w io.Writer, t *table.Table) {
	tw := newTable(w, t.ColumnNames()...)
	cols := t.Columns()
	row := make([]string, len(cols))
	for i := range t.NumRows() {
		for j, col := range cols {
			v, err := scalar.FromArray(col, i)
			switch {
			case err != nil:
				row[j] = "?"
			case v.IsNull():
				row[j] = "null"
			case v.Kind() == scalar.KindString:
				row[j] = v.AsString()
			default:
				row[j] = v.String()
			}
		}
		tw.Append(row)
	}
	tw.Render()
	fmt.Fprintf(w, "(%d rows)\n", t.NumRows())
}

func printStats(w io.Writer, s lakescan.Stats) {
	tw := newTable(w, "query", "files", "pruned", "scanned", "failed", "rows read", "rows returned", "duration")
	tw.Append([]string{
		s.QueryID,
		strconv.Itoa(s.FilesTotal),
		strconv.Itoa(s.FilesPruned),
		strconv.Itoa(s.FilesScanned),
		strconv.Itoa(s.FilesFailed),
		strconv.FormatInt(s.RowsRead, 10),
		strconv.FormatInt(s.RowsReturned, 10),
		s.Duration.String(),
	})
	tw.Render()
}

// printFailures lists the files a skip-errors query left out.
func printFailures(w io.Writer, failures []lakescan.FileFailure) {
	fmt.Fprintf(w, "skipped %d unreadable file(s):\n", len(failures))
	tw := newTable(w, "path", "error")
	for _, f := range failures {
		tw.Append([]string{f.Path, f.Err.Error()})
	}
	tw.Render()
}
