// Package predicate compiles filter expressions against a canonical schema.
//
// A Filter is a conjunction of Predicates. Compiling it yields a PrunePlan
// that decides from footer statistics alone whether a file can hold a
// matching row, plus a Residual that filters the rows of files that are
// read. Nulls fail every predicate; NaN compares as IEEE 754 does.
package predicate

import (
	"fmt"
	"strings"

	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/scalar"
)

// Operator is the closed set of comparison operators.
type Operator uint8

const (
	Eq Operator = iota + 1
	NotEq
	Lt
	LtEq
	Gt
	GtEq
	In
	NotIn
)

var operatorSymbols = map[Operator]string{
	Eq:    "=",
	NotEq: "!=",
	Lt:    "<",
	LtEq:  "<=",
	Gt:    ">",
	GtEq:  ">=",
	In:    "in",
	NotIn: "not in",
}

func (op Operator) String() string {
	if s, ok := operatorSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Valid reports whether op is one of the defined operators.
func (op Operator) Valid() bool {
	_, ok := operatorSymbols[op]
	return ok
}

func (op Operator) isSet() bool { return op == In || op == NotIn }

// ParseOperator accepts the symbols produced by String plus "==" and "<>".
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "=", "==":
		return Eq, nil
	case "!=", "<>":
		return NotEq, nil
	case "<":
		return Lt, nil
	case "<=":
		return LtEq, nil
	case ">":
		return Gt, nil
	case ">=":
		return GtEq, nil
	case "in":
		return In, nil
	case "not in":
		return NotIn, nil
	}
	return 0, lserrors.NewInvalidQueryError("Predicate", fmt.Sprintf("unsupported operator %q", s))
}

// Predicate compares one column against literal values.
type Predicate struct {
	column string
	op     Operator
	values []scalar.Value
}

// New builds a predicate. Comparison operators take exactly one literal and
// set operators any number; null literals are rejected.
func New(column string, op Operator, values ...scalar.Value) (Predicate, error) {
	if column == "" {
		return Predicate{}, lserrors.NewInvalidQueryError("Predicate", "column name is empty")
	}
	if !op.Valid() {
		return Predicate{}, lserrors.NewInvalidColumnError("Predicate", column, fmt.Sprintf("unsupported operator %s", op))
	}
	if !op.isSet() && len(values) != 1 {
		return Predicate{}, lserrors.NewInvalidColumnError("Predicate", column,
			fmt.Sprintf("operator %s takes exactly one literal, got %d", op, len(values)))
	}
	for _, v := range values {
		if v.IsNull() {
			return Predicate{}, lserrors.NewInvalidColumnError("Predicate", column, "null literal never matches; nulls fail every predicate")
		}
	}
	return Predicate{column: column, op: op, values: append([]scalar.Value(nil), values...)}, nil
}

// MustNew is New that panics.
func MustNew(column string, op Operator, values ...scalar.Value) Predicate {
	p, err := New(column, op, values...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Predicate) Column() string     { return p.column }
func (p Predicate) Operator() Operator { return p.op }

// Values returns the literals.
func (p Predicate) Values() []scalar.Value {
	return append([]scalar.Value(nil), p.values...)
}

func (p Predicate) String() string {
	if !p.op.isSet() {
		return fmt.Sprintf("%s %s %s", p.column, p.op, p.values[0])
	}
	parts := make([]string, len(p.values))
	for i, v := range p.values {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s %s (%s)", p.column, p.op, strings.Join(parts, ", "))
}

// Filter is a conjunction of predicates. The empty filter matches every row.
type Filter []Predicate

// Columns returns the distinct columns referenced, in first-use order.
func (f Filter) Columns() []string {
	seen := make(map[string]bool, len(f))
	var cols []string
	for _, p := range f {
		if !seen[p.column] {
			seen[p.column] = true
			cols = append(cols, p.column)
		}
	}
	return cols
}

func (f Filter) String() string {
	if len(f) == 0 {
		return "true"
	}
	parts := make([]string, len(f))
	for i, p := range f {
		parts[i] = p.String()
	}
	return strings.Join(parts, " and ")
}
