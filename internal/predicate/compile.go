package predicate

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/compute/exec"
	arrowscalar "github.com/apache/arrow-go/v18/arrow/scalar"
	"github.com/paveg/lakescan/internal/catalog"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/scalar"
	"github.com/paveg/lakescan/internal/schema"
)

// bound is a predicate resolved against a schema field.
type bound struct {
	Predicate
	field schema.Field
}

// PrunePlan is a compiled filter.
type PrunePlan struct {
	filter Filter
	preds  []bound
}

// Compile binds every predicate of f to a field of s. Unknown columns and
// literals that cannot be compared with the column type are invalid.
func Compile(f Filter, s *schema.Schema) (*PrunePlan, error) {
	plan := &PrunePlan{filter: f, preds: make([]bound, 0, len(f))}
	for _, p := range f {
		field, ok := s.Field(p.column)
		if !ok {
			return nil, lserrors.NewColumnNotFoundError("Compile", p.column, s.Names())
		}
		values := make([]scalar.Value, len(p.values))
		for i, v := range p.values {
			cv, err := coerceLiteral(field, v)
			if err != nil {
				return nil, err
			}
			values[i] = cv
		}
		p.values = values
		plan.preds = append(plan.preds, bound{Predicate: p, field: field})
	}
	return plan, nil
}

// coerceLiteral checks v against the field type. Timestamp columns also
// accept RFC 3339 or date strings.
func coerceLiteral(field schema.Field, v scalar.Value) (scalar.Value, error) {
	if field.Type == schema.Timestamp && v.Kind() == scalar.KindString {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v.AsString()); err == nil {
				return scalar.Timestamp(t), nil
			}
		}
	}
	if !field.Type.Accepts(v.Kind()) {
		return v, lserrors.NewInvalidColumnError("Compile", field.Name,
			fmt.Sprintf("cannot compare %s column with %s literal %s", field.Type, v.Kind(), v))
	}
	return v, nil
}

// Filter returns the filter the plan was compiled from.
func (p *PrunePlan) Filter() Filter { return p.filter }

// Empty reports whether the plan has no predicates.
func (p *PrunePlan) Empty() bool { return len(p.preds) == 0 }

// Columns returns the columns the plan reads.
func (p *PrunePlan) Columns() []string { return p.filter.Columns() }

// Skip reports whether fd's statistics prove no row of the file satisfies
// the filter. Unknown statistics never skip.
func (p *PrunePlan) Skip(fd catalog.FileDescriptor) bool {
	for _, b := range p.preds {
		if b.cannotMatch(fd) {
			return true
		}
	}
	return false
}

// Select partitions files into those that must be scanned and those the
// statistics rule out, preserving order.
func (p *PrunePlan) Select(files []catalog.FileDescriptor) (kept, pruned []catalog.FileDescriptor) {
	for _, fd := range files {
		if p.Skip(fd) {
			pruned = append(pruned, fd)
		} else {
			kept = append(kept, fd)
		}
	}
	return kept, pruned
}

// Residual returns the row filter, or nil for an empty plan.
func (p *PrunePlan) Residual() *Residual {
	if p.Empty() {
		return nil
	}
	return &Residual{preds: p.preds}
}

func (b bound) cannotMatch(fd catalog.FileDescriptor) bool {
	if !fd.HasColumn(b.column) {
		// A missing nullable column reads as all nulls. A required one is
		// left for the scan to report as a mismatch.
		return b.field.Nullable
	}
	st, ok := fd.ColumnStats(b.column)
	if !ok {
		return false
	}
	if st.AllNull(fd.NumRows) {
		return true
	}
	if !st.HasMinMax {
		return false
	}
	lo, hi := st.Min, st.Max
	lit := b.values

	switch b.op {
	case Gt:
		return cmpIs(hi, lit[0], func(c int) bool { return c <= 0 })
	case GtEq:
		return cmpIs(hi, lit[0], func(c int) bool { return c < 0 })
	case Lt:
		return cmpIs(lo, lit[0], func(c int) bool { return c >= 0 })
	case LtEq:
		return cmpIs(lo, lit[0], func(c int) bool { return c > 0 })
	case Eq:
		return outside(lit[0], lo, hi)
	case In:
		for _, v := range lit {
			if !outside(v, lo, hi) {
				return false
			}
		}
		return true
	case NotEq, NotIn:
		// Only a constant column can rule these out, and NaN rows would
		// still satisfy them.
		if b.field.Type.IsFloating() || !scalar.Equal(lo, hi) {
			return false
		}
		for _, v := range lit {
			if c, ok := scalar.Compare(lo, v); ok && c == 0 {
				return true
			}
		}
		return false
	}
	return false
}

func cmpIs(a, b scalar.Value, pred func(int) bool) bool {
	c, ok := scalar.Compare(a, b)
	return ok && pred(c)
}

// outside reports whether v lies strictly outside [lo, hi]. NaN literals
// match nothing and count as outside.
func outside(v, lo, hi scalar.Value) bool {
	if v.IsNaN() {
		return true
	}
	return cmpIs(v, lo, func(c int) bool { return c < 0 }) || cmpIs(v, hi, func(c int) bool { return c > 0 })
}

// Residual evaluates a compiled filter row by row.
type Residual struct {
	preds []bound
}

// Columns returns the columns the residual reads.
func (r *Residual) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, b := range r.preds {
		if !seen[b.column] {
			seen[b.column] = true
			cols = append(cols, b.column)
		}
	}
	return cols
}

// Match evaluates the residual for one row given a column lookup.
func (r *Residual) Match(value func(column string) scalar.Value) bool {
	for _, b := range r.preds {
		if !b.eval(value(b.column)) {
			return false
		}
	}
	return true
}

// Mask evaluates the residual over rec with the arrow comparison kernels.
// The returned boolean array is null wherever a compared value is null, so
// filtering with compute.DefaultFilterOptions drops those rows. Columns
// missing from rec read as null. The allocator is taken from ctx.
func (r *Residual) Mask(ctx context.Context, rec arrow.Record) (arrow.Array, error) {
	var mask compute.Datum
	for _, b := range r.preds {
		idx := rec.Schema().FieldIndices(b.column)
		if len(idx) == 0 {
			if mask != nil {
				mask.Release()
			}
			return array.MakeArrayOfNull(exec.GetAllocator(ctx), arrow.FixedWidthTypes.Boolean, int(rec.NumRows())), nil
		}
		m, err := b.mask(ctx, rec.Column(idx[0]))
		if err != nil {
			if mask != nil {
				mask.Release()
			}
			return nil, fmt.Errorf("evaluating %s: %w", b.Predicate, err)
		}
		if mask == nil {
			mask = m
			continue
		}
		joined, err := callAndRelease(ctx, "and", mask, m)
		if err != nil {
			return nil, err
		}
		mask = joined
	}
	if mask == nil {
		bb := array.NewBooleanBuilder(exec.GetAllocator(ctx))
		defer bb.Release()
		for i := int64(0); i < rec.NumRows(); i++ {
			bb.Append(true)
		}
		return bb.NewArray(), nil
	}
	defer mask.Release()
	return mask.(*compute.ArrayDatum).MakeArray(), nil
}

var kernelNames = map[Operator]string{
	Eq:    "equal",
	NotEq: "not_equal",
	Lt:    "less",
	LtEq:  "less_equal",
	Gt:    "greater",
	GtEq:  "greater_equal",
}

// mask compares col against the literals. NaN compares unequal to
// everything, so only != and not in hold for it.
func (b bound) mask(ctx context.Context, arr arrow.Array) (compute.Datum, error) {
	if b.field.Type.IsInteger() && b.floatLiteral() {
		// The kernels would cast the column safely and reject integers
		// beyond 2^53; round them instead.
		opts := compute.SafeCastOptions(arrow.PrimitiveTypes.Float64)
		opts.AllowFloatTruncate = true
		widened, err := compute.CastArray(ctx, arr, opts)
		if err != nil {
			return nil, err
		}
		defer widened.Release()
		arr = widened
	}
	col := compute.NewDatumWithoutOwning(arr)
	if name, ok := kernelNames[b.op]; ok {
		return compute.CallFunction(ctx, name, nil, col, literalDatum(b.values[0]))
	}
	var hit compute.Datum
	for _, lit := range b.values {
		eq, err := compute.CallFunction(ctx, "equal", nil, col, literalDatum(lit))
		if err != nil {
			if hit != nil {
				hit.Release()
			}
			return nil, err
		}
		if hit == nil {
			hit = eq
			continue
		}
		if hit, err = callAndRelease(ctx, "or", hit, eq); err != nil {
			return nil, err
		}
	}
	if b.op == NotIn {
		defer hit.Release()
		return compute.CallFunction(ctx, "not", nil, hit)
	}
	return hit, nil
}

func (b bound) floatLiteral() bool {
	for _, v := range b.values {
		if v.Kind() == scalar.KindFloat {
			return true
		}
	}
	return false
}

// callAndRelease applies a binary boolean kernel and releases both inputs.
func callAndRelease(ctx context.Context, fn string, lhs, rhs compute.Datum) (compute.Datum, error) {
	defer lhs.Release()
	defer rhs.Release()
	return compute.CallFunction(ctx, fn, nil, lhs, rhs)
}

// literalDatum boxes a literal as an arrow scalar. The comparison kernels
// promote it and the column to a common type.
func literalDatum(v scalar.Value) compute.Datum {
	switch v.Kind() {
	case scalar.KindBool:
		return compute.NewDatum(arrowscalar.NewBooleanScalar(v.AsBool()))
	case scalar.KindInt:
		return compute.NewDatum(arrowscalar.NewInt64Scalar(v.AsInt()))
	case scalar.KindFloat:
		return compute.NewDatum(arrowscalar.NewFloat64Scalar(v.AsFloat()))
	case scalar.KindString:
		return compute.NewDatum(arrowscalar.NewStringScalar(v.AsString()))
	case scalar.KindTimestamp:
		return compute.NewDatum(arrowscalar.NewTimestampScalar(
			arrow.Timestamp(v.AsTime().UnixMicro()), arrow.FixedWidthTypes.Timestamp_us))
	default:
		return compute.NewDatum(arrowscalar.MakeNullScalar(arrow.Null))
	}
}

// eval applies the predicate to one value. Null fails; NaN is unordered so
// only != and not in hold for it.
func (b bound) eval(v scalar.Value) bool {
	if v.IsNull() {
		return false
	}
	switch b.op {
	case Eq:
		return cmpIs(v, b.values[0], func(c int) bool { return c == 0 })
	case NotEq:
		c, ok := scalar.Compare(v, b.values[0])
		return !ok || c != 0
	case Lt:
		return cmpIs(v, b.values[0], func(c int) bool { return c < 0 })
	case LtEq:
		return cmpIs(v, b.values[0], func(c int) bool { return c <= 0 })
	case Gt:
		return cmpIs(v, b.values[0], func(c int) bool { return c > 0 })
	case GtEq:
		return cmpIs(v, b.values[0], func(c int) bool { return c >= 0 })
	case In:
		for _, lit := range b.values {
			if cmpIs(v, lit, func(c int) bool { return c == 0 }) {
				return true
			}
		}
		return false
	case NotIn:
		for _, lit := range b.values {
			if cmpIs(v, lit, func(c int) bool { return c == 0 }) {
				return false
			}
		}
		return true
	}
	return false
}
