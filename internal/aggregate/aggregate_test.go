package aggregate_test

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lakescan/internal/aggregate"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/paveg/lakescan/internal/table"
	"github.com/paveg/lakescan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inSchema = schema.MustNew(
	schema.Field{Name: "dept", Type: schema.String, Nullable: true},
	schema.Field{Name: "n", Type: schema.Int64, Nullable: true},
	schema.Field{Name: "x", Type: schema.Float64, Nullable: true},
	schema.Field{Name: "small", Type: schema.Int32, Nullable: true},
	schema.Field{Name: "flag", Type: schema.Boolean, Nullable: true},
)

var fullSpec = aggregate.Spec{
	GroupBy: []string{"dept"},
	Aggs: []aggregate.Agg{
		{Column: "n", Func: aggregate.Sum},
		{Column: "x", Func: aggregate.Mean},
		{Column: "x", Func: aggregate.Count, Alias: "rows"},
		{Column: "small", Func: aggregate.Min},
		{Column: "small", Func: aggregate.Max},
	},
}

func partialOf(t *testing.T, mem memory.Allocator, spec aggregate.Spec, cols ...testutil.Column) *aggregate.Partial {
	t.Helper()
	p, err := aggregate.NewPartial(spec, inSchema)
	require.NoError(t, err)
	rec := testutil.Record(t, mem, cols...)
	defer rec.Release()
	require.NoError(t, p.Update(rec))
	return p
}

func finalize(t *testing.T, mem memory.Allocator, p *aggregate.Partial) *table.Table {
	t.Helper()
	tbl, err := p.Finalize(mem)
	require.NoError(t, err)
	return tbl
}

func TestSpecOutput(t *testing.T) {
	out, err := fullSpec.OutputSchema(inSchema)
	require.NoError(t, err)
	assert.Equal(t, []string{"dept", "sum_n", "mean_x", "rows", "min_small", "max_small"}, out.Names())

	types := make([]schema.LogicalType, 0, out.Len())
	for _, f := range out.Fields() {
		types = append(types, f.Type)
	}
	assert.Equal(t, []schema.LogicalType{
		schema.String, schema.Int64, schema.Float64, schema.Int64, schema.Int32, schema.Int32,
	}, types)

	rows, _ := out.Field("rows")
	assert.False(t, rows.Nullable)
	assert.Equal(t, []string{"dept", "n", "x", "small"}, fullSpec.Columns())
	assert.Equal(t, "sum(n), mean(x), count(x) as rows, min(small), max(small) by dept", fullSpec.String())
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec aggregate.Spec
		want string
	}{
		{"empty", aggregate.Spec{}, "no group keys"},
		{"unknown group key", aggregate.Spec{GroupBy: []string{"dep"}}, "did you mean 'dept'?"},
		{"unknown column", aggregate.Spec{Aggs: []aggregate.Agg{{Column: "y", Func: aggregate.Sum}}}, "column 'y'"},
		{"sum of string", aggregate.Spec{Aggs: []aggregate.Agg{{Column: "dept", Func: aggregate.Sum}}}, "requires a numeric column"},
		{"max of bool", aggregate.Spec{Aggs: []aggregate.Agg{{Column: "flag", Func: aggregate.Max}}}, "requires an ordered column"},
		{"bad func", aggregate.Spec{Aggs: []aggregate.Agg{{Column: "n", Func: aggregate.Func(42)}}}, "unknown aggregation"},
		{"duplicate output", aggregate.Spec{Aggs: []aggregate.Agg{
			{Column: "n", Func: aggregate.Sum},
			{Column: "x", Func: aggregate.Sum, Alias: "sum_n"},
		}}, "duplicate output column"},
		{"duplicate key", aggregate.Spec{GroupBy: []string{"dept", "dept"}}, "duplicate group key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate(inSchema)
			require.Error(t, err)
			assert.ErrorIs(t, err, lserrors.ErrInvalidQuery)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFunc(t *testing.T) {
	for in, want := range map[string]aggregate.Func{
		"mean": aggregate.Mean, "AVG": aggregate.Mean, "sum": aggregate.Sum,
		" count ": aggregate.Count, "min": aggregate.Min, "Max": aggregate.Max,
	} {
		got, err := aggregate.ParseFunc(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := aggregate.ParseFunc("median")
	assert.ErrorIs(t, err, lserrors.ErrInvalidQuery)
}

func TestGroupedAggregation(t *testing.T) {
	mc := testutil.SetupMemoryTest(t)
	defer mc.Release()

	p := partialOf(t, mc.Allocator, fullSpec,
		testutil.String("dept", "b", "a", "b", nil, "a"),
		testutil.Int64("n", 1, 2, 3, 4, nil),
		testutil.Float64("x", 1.0, nil, 3.0, 5.0, 6.0),
		testutil.Int32("small", 7, 3, nil, 1, 9),
	)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, int64(5), p.Rows())

	tbl := finalize(t, mc.Allocator, p)
	defer tbl.Release()

	testutil.AssertTableHasColumns(t, tbl, "dept", "sum_n", "mean_x", "rows", "min_small", "max_small")
	assert.Equal(t, []any{"b", "a", nil}, testutil.Values(t, tbl, "dept"))
	assert.Equal(t, []any{int64(4), int64(2), int64(4)}, testutil.Values(t, tbl, "sum_n"))
	assert.Equal(t, []any{2.0, 6.0, 5.0}, testutil.Values(t, tbl, "mean_x"))
	assert.Equal(t, []any{int64(2), int64(1), int64(1)}, testutil.Values(t, tbl, "rows"))
	assert.Equal(t, []any{int64(7), int64(3), int64(1)}, testutil.Values(t, tbl, "min_small"))
	assert.Equal(t, []any{int64(7), int64(9), int64(1)}, testutil.Values(t, tbl, "max_small"))
}

func TestNaNAndNullGroups(t *testing.T) {
	mc := testutil.SetupMemoryTest(t)
	defer mc.Release()

	spec := aggregate.Spec{
		GroupBy: []string{"x"},
		Aggs: []aggregate.Agg{
			{Column: "n", Func: aggregate.Count},
			{Column: "n", Func: aggregate.Sum},
		},
	}
	p := partialOf(t, mc.Allocator, spec,
		testutil.Float64("x", math.NaN(), nil, 0.0, math.NaN(), math.Copysign(0, -1), nil),
		testutil.Int64("n", 1, 2, 3, 4, 5, nil),
	)
	tbl := finalize(t, mc.Allocator, p)
	defer tbl.Release()

	keys := testutil.Values(t, tbl, "x")
	require.Len(t, keys, 3)
	assert.True(t, math.IsNaN(keys[0].(float64)))
	assert.Nil(t, keys[1])
	assert.Equal(t, 0.0, keys[2])
	assert.Equal(t, []any{int64(2), int64(1), int64(2)}, testutil.Values(t, tbl, "count_n"))
	assert.Equal(t, []any{int64(5), int64(2), int64(8)}, testutil.Values(t, tbl, "sum_n"))
}

func TestMinMaxIgnoreNaN(t *testing.T) {
	mc := testutil.SetupMemoryTest(t)
	defer mc.Release()

	spec := aggregate.Spec{Aggs: []aggregate.Agg{
		{Column: "x", Func: aggregate.Min},
		{Column: "x", Func: aggregate.Max},
		{Column: "x", Func: aggregate.Sum},
	}}
	mixed := finalize(t, mc.Allocator, partialOf(t, mc.Allocator, spec,
		testutil.Float64("x", math.NaN(), 2.0, -1.0)))
	defer mixed.Release()
	assert.Equal(t, []any{-1.0}, testutil.Values(t, mixed, "min_x"))
	assert.Equal(t, []any{2.0}, testutil.Values(t, mixed, "max_x"))
	assert.True(t, math.IsNaN(testutil.Values(t, mixed, "sum_x")[0].(float64)))

	onlyNaN := finalize(t, mc.Allocator, partialOf(t, mc.Allocator, spec,
		testutil.Float64("x", math.NaN())))
	defer onlyNaN.Release()
	assert.True(t, math.IsNaN(testutil.Values(t, onlyNaN, "min_x")[0].(float64)))
}

func TestGlobalAggregateOverNothing(t *testing.T) {
	mc := testutil.SetupMemoryTest(t)
	defer mc.Release()

	spec := aggregate.Spec{Aggs: []aggregate.Agg{
		{Column: "x", Func: aggregate.Count},
		{Column: "x", Func: aggregate.Mean},
		{Column: "n", Func: aggregate.Max},
	}}
	p, err := aggregate.NewPartial(spec, inSchema)
	require.NoError(t, err)

	tbl := finalize(t, mc.Allocator, p)
	defer tbl.Release()
	assert.Equal(t, 1, tbl.NumRows())
	assert.Equal(t, []any{int64(0)}, testutil.Values(t, tbl, "count_x"))
	assert.Equal(t, []any{nil}, testutil.Values(t, tbl, "mean_x"))
	assert.Equal(t, []any{nil}, testutil.Values(t, tbl, "max_n"))

	grouped, err := aggregate.NewPartial(fullSpec, inSchema)
	require.NoError(t, err)
	empty := finalize(t, mc.Allocator, grouped)
	defer empty.Release()
	assert.Zero(t, empty.NumRows())
}

func TestMissingColumnsReadAsNull(t *testing.T) {
	mc := testutil.SetupMemoryTest(t)
	defer mc.Release()

	p := partialOf(t, mc.Allocator, fullSpec, testutil.String("dept", "a", "a"))
	tbl := finalize(t, mc.Allocator, p)
	defer tbl.Release()
	assert.Equal(t, []any{"a"}, testutil.Values(t, tbl, "dept"))
	assert.Equal(t, []any{nil}, testutil.Values(t, tbl, "sum_n"))
	assert.Equal(t, []any{int64(0)}, testutil.Values(t, tbl, "rows"))
}

func TestCombineAssociative(t *testing.T) {
	mc := testutil.SetupMemoryTest(t)
	defer mc.Release()

	parts := []*aggregate.Partial{
		partialOf(t, mc.Allocator, fullSpec,
			testutil.String("dept", "a", "b"),
			testutil.Int64("n", 1, 2),
			testutil.Float64("x", 1.0, 2.0),
			testutil.Int32("small", 5, 6)),
		partialOf(t, mc.Allocator, fullSpec,
			testutil.String("dept", "c", "a", nil),
			testutil.Int64("n", 3, nil, 4),
			testutil.Float64("x", 3.0, 4.0, nil),
			testutil.Int32("small", -1, 10, 0)),
		partialOf(t, mc.Allocator, fullSpec,
			testutil.String("dept", "b"),
			testutil.Int64("n", 7),
			testutil.Float64("x", 8.0),
			testutil.Int32("small", 2)),
	}

	left, err := aggregate.Combine(parts[0], parts[1])
	require.NoError(t, err)
	left, err = aggregate.Combine(left, parts[2])
	require.NoError(t, err)

	right, err := aggregate.Combine(parts[1], parts[2])
	require.NoError(t, err)
	right, err = aggregate.Combine(parts[0], right)
	require.NoError(t, err)

	flat, err := aggregate.Combine(parts...)
	require.NoError(t, err)

	lt := finalize(t, mc.Allocator, left)
	defer lt.Release()
	for _, other := range []*aggregate.Partial{right, flat} {
		ot := finalize(t, mc.Allocator, other)
		for _, name := range lt.ColumnNames() {
			assert.Equal(t, testutil.Values(t, lt, name), testutil.Values(t, ot, name), name)
		}
		ot.Release()
	}
	assert.Equal(t, []any{"a", "b", "c", nil}, testutil.Values(t, lt, "dept"))
	assert.Equal(t, []any{2.5, 5.0, 3.0, nil}, testutil.Values(t, lt, "mean_x"))
	assert.Equal(t, int64(6), left.Rows())

	// Inputs are left untouched.
	assert.Equal(t, 2, parts[0].Len())
	assert.Equal(t, int64(2), parts[0].Rows())
}

func TestCombineRejectsDifferentSpecs(t *testing.T) {
	a, err := aggregate.NewPartial(fullSpec, inSchema)
	require.NoError(t, err)
	b, err := aggregate.NewPartial(aggregate.Spec{GroupBy: []string{"dept"}}, inSchema)
	require.NoError(t, err)
	_, err = aggregate.Combine(a, b)
	assert.Error(t, err)

	_, err = aggregate.Combine()
	assert.Error(t, err)
}
