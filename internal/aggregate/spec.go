// Package aggregate implements partition-wise partial aggregation: each scan
// produces a Partial, partials are merged with Combine, and Finalize turns
// the merged state into a table.
package aggregate

import (
	"fmt"
	"strings"

	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/paveg/lakescan/internal/validation"
)

// Func is an aggregation function.
type Func uint8

const (
	Mean Func = iota + 1
	Sum
	Count
	Min
	Max
)

var funcNames = map[Func]string{
	Mean:  "mean",
	Sum:   "sum",
	Count: "count",
	Min:   "min",
	Max:   "max",
}

func (f Func) String() string {
	if s, ok := funcNames[f]; ok {
		return s
	}
	return fmt.Sprintf("func(%d)", uint8(f))
}

// ParseFunc accepts the names produced by String and "avg".
func ParseFunc(s string) (Func, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "avg" {
		return Mean, nil
	}
	for f, n := range funcNames {
		if n == name {
			return f, nil
		}
	}
	return 0, lserrors.NewInvalidQueryError("Agg", fmt.Sprintf("unknown aggregation %q", s))
}

// Agg aggregates one column.
type Agg struct {
	Column string
	Func   Func
	Alias  string
}

// OutputName is the alias if set, else "<func>_<column>".
func (a Agg) OutputName() string {
	if a.Alias != "" {
		return a.Alias
	}
	return a.Func.String() + "_" + a.Column
}

func (a Agg) String() string {
	s := fmt.Sprintf("%s(%s)", a.Func, a.Column)
	if a.Alias != "" {
		s += " as " + a.Alias
	}
	return s
}

// outputType is the logical type Finalize produces for a over input type in.
func (a Agg) outputType(in schema.LogicalType) schema.LogicalType {
	switch a.Func {
	case Count:
		return schema.Int64
	case Mean:
		return schema.Float64
	case Sum:
		if in.IsInteger() {
			return schema.Int64
		}
		return schema.Float64
	default:
		return in
	}
}

// Spec is a grouped aggregation. Without GroupBy it yields one row.
type Spec struct {
	GroupBy []string
	Aggs    []Agg
}

// Empty reports whether the spec aggregates nothing.
func (s Spec) Empty() bool { return len(s.GroupBy) == 0 && len(s.Aggs) == 0 }

// Columns returns the input columns the aggregation reads: group keys then
// aggregated columns, without repeats.
func (s Spec) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, g := range s.GroupBy {
		add(g)
	}
	for _, a := range s.Aggs {
		add(a.Column)
	}
	return cols
}

// OutputNames returns the result column names: group keys then aggregates.
func (s Spec) OutputNames() []string {
	names := append([]string(nil), s.GroupBy...)
	for _, a := range s.Aggs {
		names = append(names, a.OutputName())
	}
	return names
}

// Validate checks the spec against the input schema.
func (s Spec) Validate(in *schema.Schema) error {
	if s.Empty() {
		return lserrors.NewInvalidQueryError("Aggregate", "no group keys or aggregations")
	}
	var numeric, ordered []string
	for _, a := range s.Aggs {
		if _, ok := funcNames[a.Func]; !ok {
			return lserrors.NewInvalidColumnError("Aggregate", a.Column, fmt.Sprintf("unknown aggregation %s", a.Func))
		}
		switch a.Func {
		case Sum, Mean:
			numeric = append(numeric, a.Column)
		case Min, Max:
			ordered = append(ordered, a.Column)
		}
	}
	return validation.NewCompoundValidator(
		validation.NewNotEmptyValidator("GroupBy", "group key", s.GroupBy...),
		validation.NewColumnValidator(in, "GroupBy", s.GroupBy...),
		validation.NewUniqueValidator("GroupBy", "group key", s.GroupBy...),
		validation.NewNotEmptyValidator("Aggregate", "aggregated column", s.Columns()...),
		validation.NewColumnValidator(in, "Aggregate", s.Columns()...),
		validation.NewTypeValidator(in, "Aggregate", "a numeric", schema.LogicalType.IsNumeric, numeric...),
		validation.NewTypeValidator(in, "Aggregate", "an ordered", func(t schema.LogicalType) bool {
			return t != schema.Boolean
		}, ordered...),
		validation.NewUniqueValidator("Aggregate", "output column", s.OutputNames()...),
	).Validate()
}

// OutputSchema is the schema of the finalized table. Group keys keep their
// input field; Count is never null.
func (s Spec) OutputSchema(in *schema.Schema) (*schema.Schema, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}
	fields := make([]schema.Field, 0, len(s.GroupBy)+len(s.Aggs))
	for _, g := range s.GroupBy {
		f, _ := in.Field(g)
		fields = append(fields, f)
	}
	for _, a := range s.Aggs {
		f, _ := in.Field(a.Column)
		fields = append(fields, schema.Field{
			Name:     a.OutputName(),
			Type:     a.outputType(f.Type),
			Nullable: a.Func != Count,
		})
	}
	return schema.New(fields...)
}

func (s Spec) String() string {
	parts := make([]string, len(s.Aggs))
	for i, a := range s.Aggs {
		parts[i] = a.String()
	}
	out := strings.Join(parts, ", ")
	if len(s.GroupBy) > 0 {
		out += " by " + strings.Join(s.GroupBy, ", ")
	}
	return out
}
