// Package validation provides reusable validators for query inputs: column
// existence, column types, and name uniqueness.
package validation

import (
	"fmt"
	"strings"

	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/schema"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ColumnProvider interface for types that provide column information
type ColumnProvider interface {
	Field(name string) (schema.Field, bool)
	Names() []string
}

// ColumnValidator validates column existence
type ColumnValidator struct {
	schema  ColumnProvider
	columns []string
	op      string
}

// NewColumnValidator creates a validator for column operations
func NewColumnValidator(s ColumnProvider, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{
		schema:  s,
		columns: columns,
		op:      op,
	}
}

// Validate checks if all columns exist in the schema
func (v *ColumnValidator) Validate() error {
	for _, column := range v.columns {
		if _, ok := v.schema.Field(column); !ok {
			return lserrors.NewColumnNotFoundError(v.op, column, v.schema.Names())
		}
	}
	return nil
}

// TypeValidator checks that columns have one of the allowed logical types.
type TypeValidator struct {
	schema  ColumnProvider
	columns []string
	allowed func(schema.LogicalType) bool
	want    string
	op      string
}

// NewTypeValidator creates a validator for type checking. want describes
// the allowed types in the error message.
func NewTypeValidator(s ColumnProvider, op, want string, allowed func(schema.LogicalType) bool, columns ...string) *TypeValidator {
	return &TypeValidator{
		schema:  s,
		columns: columns,
		allowed: allowed,
		want:    want,
		op:      op,
	}
}

// Validate checks every column's type. Missing columns are left to
// ColumnValidator.
func (v *TypeValidator) Validate() error {
	for _, column := range v.columns {
		f, ok := v.schema.Field(column)
		if !ok {
			continue
		}
		if !v.allowed(f.Type) {
			return lserrors.NewInvalidColumnError(v.op, column,
				fmt.Sprintf("requires %s column, got %s", v.want, f.Type))
		}
	}
	return nil
}

// UniqueValidator rejects repeated names.
type UniqueValidator struct {
	names []string
	what  string
	op    string
}

// NewUniqueValidator creates a validator that rejects duplicates in names.
func NewUniqueValidator(op, what string, names ...string) *UniqueValidator {
	return &UniqueValidator{names: names, what: what, op: op}
}

// Validate reports the first repeated name.
func (v *UniqueValidator) Validate() error {
	seen := make(map[string]bool, len(v.names))
	for _, name := range v.names {
		if seen[name] {
			return lserrors.NewInvalidColumnError(v.op, name, fmt.Sprintf("duplicate %s", v.what))
		}
		seen[name] = true
	}
	return nil
}

// NotEmptyValidator rejects empty or blank names.
type NotEmptyValidator struct {
	names []string
	what  string
	op    string
}

// NewNotEmptyValidator creates a validator for blank names.
func NewNotEmptyValidator(op, what string, names ...string) *NotEmptyValidator {
	return &NotEmptyValidator{names: names, what: what, op: op}
}

// Validate checks that no name is blank.
func (v *NotEmptyValidator) Validate() error {
	for i, name := range v.names {
		if strings.TrimSpace(name) == "" {
			return lserrors.NewInvalidQueryError(v.op, fmt.Sprintf("%s %d is empty", v.what, i))
		}
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{
		validators: validators,
	}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience validation functions

// ValidateColumns is a convenience function for column validation
func ValidateColumns(s ColumnProvider, op string, columns ...string) error {
	return NewCompoundValidator(
		NewNotEmptyValidator(op, "column", columns...),
		NewColumnValidator(s, op, columns...),
	).Validate()
}

// ValidateNumeric checks that columns are integer or floating point.
func ValidateNumeric(s ColumnProvider, op string, columns ...string) error {
	return NewTypeValidator(s, op, "a numeric", schema.LogicalType.IsNumeric, columns...).Validate()
}

// ValidateOrdered checks that columns have an ordered type, which excludes
// booleans.
func ValidateOrdered(s ColumnProvider, op string, columns ...string) error {
	return NewTypeValidator(s, op, "an ordered", func(t schema.LogicalType) bool {
		return t != schema.Boolean && t != schema.Unknown
	}, columns...).Validate()
}

// ValidateUnique is a convenience function for duplicate detection
func ValidateUnique(op, what string, names ...string) error {
	return NewUniqueValidator(op, what, names...).Validate()
}
