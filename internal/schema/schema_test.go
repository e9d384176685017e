package schema_test

import (
	"context"
	"testing"

	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/paveg/lakescan/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(name string, t schema.LogicalType, nullable bool) schema.Field {
	return schema.Field{Name: name, Type: t, Nullable: nullable}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		a, b schema.LogicalType
		want schema.LogicalType
		ok   bool
	}{
		{schema.Int32, schema.Int32, schema.Int32, true},
		{schema.Int32, schema.Int64, schema.Int64, true},
		{schema.Int64, schema.Float64, schema.Float64, true},
		{schema.Int32, schema.Float32, schema.Float64, true},
		{schema.Float32, schema.Float64, schema.Float64, true},
		{schema.Int64, schema.Float32, schema.Float64, true},
		{schema.String, schema.String, schema.String, true},
		{schema.String, schema.Int64, schema.Unknown, false},
		{schema.Boolean, schema.Int32, schema.Unknown, false},
		{schema.Timestamp, schema.Int64, schema.Unknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+"+"+tt.b.String(), func(t *testing.T) {
			got, ok := schema.Join(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)

			back, ok := schema.Join(tt.b, tt.a)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, back)
		})
	}
}

func TestCanWiden(t *testing.T) {
	assert.True(t, schema.CanWiden(schema.Int32, schema.Int64))
	assert.True(t, schema.CanWiden(schema.Int32, schema.Float64))
	assert.True(t, schema.CanWiden(schema.Float32, schema.Float64))
	assert.True(t, schema.CanWiden(schema.String, schema.String))
	assert.False(t, schema.CanWiden(schema.Int64, schema.Int32))
	assert.False(t, schema.CanWiden(schema.Float64, schema.Float32))
	assert.False(t, schema.CanWiden(schema.Int32, schema.Float32))
	assert.False(t, schema.CanWiden(schema.Int64, schema.String))
}

func TestNewRejectsBadFields(t *testing.T) {
	_, err := schema.New(f("a", schema.Int64, false), f("a", schema.String, true))
	assert.ErrorIs(t, err, lserrors.ErrInvalidQuery)

	_, err = schema.New(f("", schema.Int64, false))
	assert.Error(t, err)

	_, err = schema.New(f("x", schema.Unknown, false))
	assert.Error(t, err)
}

func TestMergeScenario(t *testing.T) {
	a := schema.MustNew(f("lat", schema.Float64, false), f("lon", schema.Float64, false), f("val", schema.Int32, false))
	b := schema.MustNew(f("lat", schema.Float64, false), f("lon", schema.Float64, false))
	c := schema.MustNew(f("val", schema.Float64, false))

	merged, err := schema.Merge(a, b, c)
	require.NoError(t, err)

	assert.Equal(t, []string{"lat", "lon", "val"}, merged.Names())
	val, _ := merged.Field("val")
	assert.Equal(t, schema.Float64, val.Type)
	assert.True(t, val.Nullable, "missing from b so nullable")
	lat, _ := merged.Field("lat")
	assert.True(t, lat.Nullable, "missing from c so nullable")
}

func TestMergeIsOrderIndependent(t *testing.T) {
	schemas := []*schema.Schema{
		schema.MustNew(f("x", schema.Int32, false), f("y", schema.String, true)),
		schema.MustNew(f("x", schema.Int64, false)),
		schema.MustNew(f("z", schema.Float32, false), f("x", schema.Int32, true)),
		schema.MustNew(f("z", schema.Float64, false), f("y", schema.String, false)),
	}

	base, err := schema.Merge(schemas...)
	require.NoError(t, err)

	permutations := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, p := range permutations {
		reordered := make([]*schema.Schema, len(p))
		for i, j := range p {
			reordered[i] = schemas[j]
		}
		got, err := schema.Merge(reordered...)
		require.NoError(t, err)
		assert.True(t, base.Equal(got), "%v != %v", base, got)
	}

	left, err := schema.Merge(schemas[0], schemas[1])
	require.NoError(t, err)
	left, err = schema.Merge(left, schemas[2], schemas[3])
	require.NoError(t, err)

	right, err := schema.Merge(schemas[2], schemas[3])
	require.NoError(t, err)
	right, err = schema.Merge(schemas[0], schemas[1], right)
	require.NoError(t, err)

	assert.True(t, base.Equal(left))
	assert.True(t, base.Equal(right))
}

func TestMergeConflictIsOrderIndependent(t *testing.T) {
	s1 := schema.MustNew(f("b", schema.String, false), f("a", schema.Int64, false))
	s2 := schema.MustNew(f("b", schema.Int64, false), f("a", schema.Boolean, false))
	s3 := schema.MustNew(f("a", schema.Int64, false))

	_, err1 := schema.Merge(s1, s2, s3)
	_, err2 := schema.Merge(s3, s2, s1)
	require.Error(t, err1)
	require.Error(t, err2)
	assert.ErrorIs(t, err1, lserrors.ErrSchemaConflict)
	assert.Equal(t, err1.Error(), err2.Error())
	assert.Contains(t, err1.Error(), "column 'a'")
	assert.Contains(t, err1.Error(), "[bool, int64]")
}

func TestSchemaEqualIgnoresOrder(t *testing.T) {
	s1 := schema.MustNew(f("a", schema.Int64, false), f("b", schema.String, true))
	s2 := schema.MustNew(f("b", schema.String, true), f("a", schema.Int64, false))
	s3 := schema.MustNew(f("b", schema.String, false), f("a", schema.Int64, false))

	assert.True(t, s1.Equal(s2))
	assert.False(t, s1.Equal(s3))
}

func TestArrowRoundTrip(t *testing.T) {
	s := schema.MustNew(
		f("flag", schema.Boolean, false),
		f("n", schema.Int32, true),
		f("id", schema.Int64, false),
		f("x", schema.Float32, true),
		f("y", schema.Float64, true),
		f("name", schema.String, true),
		f("time", schema.Timestamp, true),
	)
	back, unsupported, err := schema.FromArrow(s.ToArrow())
	require.NoError(t, err)
	assert.Empty(t, unsupported)
	assert.True(t, s.Equal(back))
}

func TestSelect(t *testing.T) {
	s := schema.MustNew(f("a", schema.Int64, false), f("b", schema.String, true))
	sub, err := s.Select("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, sub.Names())

	_, err = s.Select("c")
	assert.ErrorIs(t, err, lserrors.ErrInvalidQuery)
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"bool", "int32", "int64", "float32", "float64", "string", "timestamp"} {
		typ, err := schema.ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, name, typ.String())
	}
	_, err := schema.ParseType("decimal")
	assert.Error(t, err)
}

func TestRegistryInfer(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.ScenarioDataset(t, fs, "/data")
	reg := schema.NewRegistry(fs, nil)

	s, err := reg.Infer(context.Background(), "/data", []string{"/data/a.parquet", "/data/b.parquet", "/data/c.parquet"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lat", "lon", "val"}, s.Names())

	val, _ := s.Field("val")
	assert.Equal(t, schema.Float64, val.Type)
	assert.True(t, val.Nullable)
}

func TestRegistryConflict(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.WriteParquet(t, fs, "/data/a.parquet", []testutil.Column{testutil.Int64("val", 1)})
	testutil.WriteParquet(t, fs, "/data/b.parquet", []testutil.Column{testutil.String("val", "x")})

	_, err := schema.NewRegistry(fs, nil).Infer(context.Background(), "/data", []string{"/data/a.parquet", "/data/b.parquet"})
	assert.ErrorIs(t, err, lserrors.ErrSchemaConflict)
}

func TestRegistrySidecarWins(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.ScenarioDataset(t, fs, "/data")
	testutil.WriteParquet(t, fs, "/data/_common_metadata", []testutil.Column{
		testutil.Float64("lat"), testutil.Float64("val"),
	})

	reg := schema.NewRegistry(fs, nil)
	s, err := reg.Resolve("/data", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"lat", "val"}, s.Names())

	reg.Sidecar = false
	s, err = reg.Infer(context.Background(), "/data", []string{"/data/a.parquet"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lat", "lon", "val"}, s.Names())
}

func TestReadFileCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.WriteCorrupt(t, fs, "/data/bad.parquet")

	_, _, err := schema.ReadFile(fs, "/data/bad.parquet")
	assert.ErrorIs(t, err, lserrors.ErrRead)
}
