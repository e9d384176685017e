package engine

import (
	"time"

	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/table"
)

// Stats summarises one execution.
type Stats struct {
	QueryID      string
	FilesTotal   int
	FilesPruned  int
	FilesScanned int
	FilesFailed  int
	RowsRead     int64
	RowsReturned int64
	Duration     time.Duration
}

// Result is a materialized query.
type Result struct {
	Table    *table.Table
	Failures []lserrors.FileFailure
	Stats    Stats
}

// Err returns a PartialFailure listing the skipped files, or nil when every
// file was read.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &lserrors.PartialFailure{Failures: r.Failures}
}

// Release frees the table's memory.
func (r *Result) Release() {
	if r.Table != nil {
		r.Table.Release()
	}
}
