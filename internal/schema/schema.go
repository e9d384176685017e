// Package schema models the canonical schema of a partitioned dataset and
// reconciles the per-file schemas found in it.
//
// A dataset's files may disagree: a column can be missing from some files or
// stored with a narrower numeric type. Merge folds any number of file
// schemas into one canonical schema using the widening lattice
//
//	Int32 <= Int64 <= Float64
//	Float32 <= Float64
//
// Boolean, String and Timestamp join only with themselves. The join is
// commutative and associative, so the merged schema does not depend on the
// order files are listed in.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	lserrors "github.com/paveg/lakescan/internal/errors"
)

// Field is a named, typed column.
type Field struct {
	Name     string      `json:"name" yaml:"name"`
	Type     LogicalType `json:"type" yaml:"type"`
	Nullable bool        `json:"nullable" yaml:"nullable"`
}

func (f Field) String() string {
	if f.Nullable {
		return fmt.Sprintf("%s: %s (nullable)", f.Name, f.Type)
	}
	return fmt.Sprintf("%s: %s", f.Name, f.Type)
}

// Schema is an ordered, immutable list of fields with unique names.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New builds a schema. Names must be unique and non-empty and every type
// must be known.
func New(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, lserrors.NewInvalidQueryError("Schema", fmt.Sprintf("field %d has an empty name", i))
		}
		if f.Type == Unknown {
			return nil, lserrors.NewInvalidColumnError("Schema", f.Name, "field type is unknown")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, lserrors.NewInvalidColumnError("Schema", f.Name, "duplicate field name")
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustNew is New that panics; for tests and static schemas.
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the fields in order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Index returns the position of name or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Names returns field names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Select returns the sub-schema of the named fields in the given order.
func (s *Schema) Select(names ...string) (*Schema, error) {
	fields := make([]Field, 0, len(names))
	for _, n := range names {
		f, ok := s.Field(n)
		if !ok {
			return nil, lserrors.NewColumnNotFoundError("Select", n, s.Names())
		}
		fields = append(fields, f)
	}
	return New(fields...)
}

// Equal compares field sets by name, type and nullability. Order is
// presentation only and is ignored.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for _, f := range s.fields {
		g, ok := o.Field(f.Name)
		if !ok || g != f {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "schema{" + strings.Join(parts, ", ") + "}"
}

// ToArrow returns the arrow schema used for batches of this schema.
func (s *Schema) ToArrow() *arrow.Schema {
	fields := make([]arrow.Field, len(s.fields))
	for i, f := range s.fields {
		fields[i] = arrow.Field{Name: f.Name, Type: f.Type.ArrowType(), Nullable: f.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// FromArrow converts an arrow schema. Fields of unsupported types are left
// out and their names returned so callers can log them.
func FromArrow(as *arrow.Schema) (*Schema, []string, error) {
	var (
		fields      []Field
		unsupported []string
	)
	for _, af := range as.Fields() {
		t, ok := FromArrowType(af.Type)
		if !ok {
			unsupported = append(unsupported, af.Name)
			continue
		}
		fields = append(fields, Field{Name: af.Name, Type: t, Nullable: af.Nullable})
	}
	s, err := New(fields...)
	return s, unsupported, err
}

// Merge folds schemas into one canonical schema. Field order is first
// appearance across the inputs. A field is nullable when any input marks it
// nullable or lacks it. Fields whose types do not join produce a schema
// conflict naming the smallest such field and every type seen for it.
func Merge(schemas ...*Schema) (*Schema, error) {
	type acc struct {
		typ      LogicalType
		ok       bool
		seen     map[LogicalType]struct{}
		nullable bool
		count    int
	}
	var (
		order []string
		accs  = make(map[string]*acc)
	)
	for _, s := range schemas {
		if s == nil {
			continue
		}
		for _, f := range s.fields {
			a, exists := accs[f.Name]
			if !exists {
				a = &acc{typ: f.Type, ok: true, seen: map[LogicalType]struct{}{}}
				accs[f.Name] = a
				order = append(order, f.Name)
			} else if a.ok {
				a.typ, a.ok = Join(a.typ, f.Type)
			}
			a.seen[f.Type] = struct{}{}
			a.nullable = a.nullable || f.Nullable
			a.count++
		}
	}

	var conflicts []string
	for name, a := range accs {
		if !a.ok {
			conflicts = append(conflicts, name)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		a := accs[conflicts[0]]
		types := make([]string, 0, len(a.seen))
		for t := range a.seen {
			types = append(types, t.String())
		}
		return nil, lserrors.NewSchemaConflictError(conflicts[0], types)
	}

	inputs := 0
	for _, s := range schemas {
		if s != nil {
			inputs++
		}
	}
	fields := make([]Field, len(order))
	for i, name := range order {
		a := accs[name]
		fields[i] = Field{Name: name, Type: a.typ, Nullable: a.nullable || a.count < inputs}
	}
	return New(fields...)
}
