// Package plan turns a query over a catalog snapshot into a task graph:
// one Scan per surviving file, optionally feeding a PartialAggregate, merged
// through a balanced Combine tree into a single Finalize node.
package plan

import (
	"fmt"
	"strings"

	"github.com/paveg/lakescan/internal/aggregate"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/predicate"
	"github.com/paveg/lakescan/internal/schema"
)

// ErrorPolicy decides what a failed scan does to the query.
type ErrorPolicy uint8

const (
	// Abort fails the query on the first scan error.
	Abort ErrorPolicy = iota
	// Skip records the failure and continues with the remaining files.
	Skip
)

func (p ErrorPolicy) String() string {
	if p == Skip {
		return "skip"
	}
	return "abort"
}

// ParseErrorPolicy parses "abort" or "skip". The empty string is Abort.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return Abort, nil
	case "skip":
		return Skip, nil
	}
	return Abort, lserrors.NewInvalidQueryError("OnError", fmt.Sprintf("unknown error policy %q, want abort or skip", s))
}

// Query is everything a caller asks of one dataset.
type Query struct {
	Schema      *schema.Schema // canonical schema
	Filter      predicate.Filter
	Projection  []string // empty selects every column
	Aggregation aggregate.Spec
	OnError     ErrorPolicy
}

// Aggregated reports whether the query aggregates.
func (q Query) Aggregated() bool { return !q.Aggregation.Empty() }

// scanColumns returns the columns each scan must return.
func (q Query) scanColumns() []string {
	if q.Aggregated() {
		return q.Aggregation.Columns()
	}
	if len(q.Projection) == 0 {
		return q.Schema.Names()
	}
	return q.Projection
}
