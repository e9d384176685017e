package plan_test

import (
	"context"
	"strings"
	"testing"

	"github.com/paveg/lakescan/internal/aggregate"
	"github.com/paveg/lakescan/internal/catalog"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/plan"
	"github.com/paveg/lakescan/internal/predicate"
	"github.com/paveg/lakescan/internal/scalar"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/paveg/lakescan/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioSchema = schema.MustNew(
	schema.Field{Name: "lat", Type: schema.Float64, Nullable: true},
	schema.Field{Name: "lon", Type: schema.Float64, Nullable: true},
	schema.Field{Name: "val", Type: schema.Float64, Nullable: true},
)

func scenarioCatalog(t *testing.T) (afero.Fs, *catalog.Catalog) {
	t.Helper()
	fs := afero.NewMemMapFs()
	testutil.ScenarioDataset(t, fs, "/d")
	cat, err := catalog.List(context.Background(), fs, "/d", catalog.Options{})
	require.NoError(t, err)
	return fs, cat
}

func countKinds(g *plan.Graph) map[plan.NodeKind]int {
	counts := make(map[plan.NodeKind]int)
	for _, n := range g.Nodes {
		counts[n.Kind]++
	}
	return counts
}

func TestPlanProjection(t *testing.T) {
	fs, cat := scenarioCatalog(t)
	p := &plan.Planner{FS: fs, BatchSize: 128}

	g, err := p.Plan(cat, plan.Query{Schema: scenarioSchema, Projection: []string{"val", "lat"}})
	require.NoError(t, err)

	assert.Equal(t, 3, g.Total)
	assert.Len(t, g.Files, 3)
	assert.Empty(t, g.Pruned)
	assert.Equal(t, []string{"val", "lat"}, g.Output.Names())
	assert.Equal(t, map[plan.NodeKind]int{plan.ScanNode: 3, plan.FinalizeNode: 1}, countKinds(g))

	root := g.Node(g.Root)
	assert.Equal(t, plan.FinalizeNode, root.Kind)
	assert.Equal(t, []int{0, 1, 2}, root.Inputs)
	for _, n := range g.ScanNodes() {
		assert.Equal(t, []string{"val", "lat"}, n.Task.Projection)
		assert.Equal(t, int64(128), n.Task.BatchSize)
		assert.Nil(t, n.Task.Residual)
		assert.Same(t, root, g.Consumer(n.ID))
	}
}

func TestPlanPrunes(t *testing.T) {
	fs, cat := scenarioCatalog(t)
	p := &plan.Planner{FS: fs}

	g, err := p.Plan(cat, plan.Query{
		Schema: scenarioSchema,
		Filter: predicate.Filter{predicate.MustNew("val", predicate.Gt, scalar.Int(5))},
	})
	require.NoError(t, err)

	require.Len(t, g.Files, 1)
	assert.True(t, strings.HasSuffix(g.Files[0].Path, "c.parquet"))
	assert.Len(t, g.Pruned, 2)
	scans := g.ScanNodes()
	require.Len(t, scans, 1)
	assert.NotNil(t, scans[0].Task.Residual)
	assert.Equal(t, scenarioSchema.Names(), scans[0].Task.Projection)

	out := g.String()
	assert.Contains(t, out, "files: 3 total, 2 pruned, 1 scanned")
	assert.Contains(t, out, "filter: val > 5")
	assert.Contains(t, out, "Scan #0 c.parquet [lat, lon, val] where val > 5")
}

func TestPlanAggregateTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.ProfileDataset(t, fs, "/p", 5, 2)
	cat, err := catalog.List(context.Background(), fs, "/p", catalog.Options{})
	require.NoError(t, err)
	s, err := schema.Merge(cat.Schemas()...)
	require.NoError(t, err)

	spec := aggregate.Spec{GroupBy: []string{"lat"}, Aggs: []aggregate.Agg{{Column: "val", Func: aggregate.Mean}}}
	g, err := (&plan.Planner{FS: fs}).Plan(cat, plan.Query{Schema: s, Aggregation: spec})
	require.NoError(t, err)

	assert.Equal(t, map[plan.NodeKind]int{
		plan.ScanNode:             5,
		plan.PartialAggregateNode: 5,
		plan.CombineNode:          4,
		plan.FinalizeNode:         1,
	}, countKinds(g))
	assert.Equal(t, []string{"lat", "mean_val"}, g.Output.Names())

	for _, n := range g.ScanNodes() {
		assert.Equal(t, []string{"lat", "val"}, n.Task.Projection)
		consumer := g.Consumer(n.ID)
		require.NotNil(t, consumer)
		assert.Equal(t, plan.PartialAggregateNode, consumer.Kind)
		assert.Equal(t, n.File, consumer.File)
	}

	// Every node feeds exactly one later node except the root.
	fed := make(map[int]int)
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			assert.Less(t, in, n.ID)
			fed[in]++
		}
	}
	for _, n := range g.Nodes {
		if n.ID == g.Root {
			assert.Zero(t, fed[n.ID])
			continue
		}
		assert.Equal(t, 1, fed[n.ID], "node %d", n.ID)
	}

	root := g.Node(g.Root)
	require.Len(t, root.Inputs, 1)
	assert.Equal(t, plan.CombineNode, g.Node(root.Inputs[0]).Kind)
	assert.Contains(t, g.String(), "PartialAggregate #1 mean(val) by lat")
}

func TestPlanNothingToScan(t *testing.T) {
	fs, cat := scenarioCatalog(t)
	g, err := (&plan.Planner{FS: fs}).Plan(cat, plan.Query{
		Schema:      scenarioSchema,
		Filter:      predicate.Filter{predicate.MustNew("val", predicate.Gt, scalar.Int(100))},
		Aggregation: aggregate.Spec{Aggs: []aggregate.Agg{{Column: "val", Func: aggregate.Count}}},
	})
	require.NoError(t, err)
	assert.Empty(t, g.Files)
	require.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Node(g.Root).Inputs)
}

func TestPlanCarriesListingFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.ScenarioDataset(t, fs, "/d")
	testutil.WriteCorrupt(t, fs, "/d/bad.parquet")
	cat, err := catalog.List(context.Background(), fs, "/d", catalog.Options{SkipErrors: true})
	require.NoError(t, err)

	g, err := (&plan.Planner{FS: fs}).Plan(cat, plan.Query{Schema: scenarioSchema, OnError: plan.Skip})
	require.NoError(t, err)
	require.Len(t, g.Failures, 1)
	assert.Equal(t, "/d/bad.parquet", g.Failures[0].Path)
	assert.Contains(t, g.String(), "unreadable: 1 skipped while listing")

	failures := g.ListingFailures()
	failures[0].Path = "changed"
	assert.Equal(t, "/d/bad.parquet", g.Failures[0].Path)
}

func TestPlanEmptySchema(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))
	cat, err := catalog.List(context.Background(), fs, "/empty", catalog.Options{})
	require.NoError(t, err)

	g, err := (&plan.Planner{FS: fs}).Plan(cat, plan.Query{Schema: schema.MustNew()})
	require.NoError(t, err)
	assert.Zero(t, g.Total)
	assert.Zero(t, g.Output.Len())
	assert.Empty(t, g.ScanNodes())
}

func TestPlanRejectsInvalidQueries(t *testing.T) {
	fs, cat := scenarioCatalog(t)
	p := &plan.Planner{FS: fs}
	tests := []struct {
		name  string
		query plan.Query
		want  string
	}{
		{"no schema", plan.Query{}, "no schema"},
		{"unknown projection", plan.Query{Schema: scenarioSchema, Projection: []string{"vals"}}, "did you mean 'val'?"},
		{"duplicate projection", plan.Query{Schema: scenarioSchema, Projection: []string{"lat", "lat"}}, "duplicate column"},
		{"unknown filter column", plan.Query{
			Schema: scenarioSchema,
			Filter: predicate.Filter{predicate.MustNew("height", predicate.Eq, scalar.Int(1))},
		}, "column 'height'"},
		{"bad literal", plan.Query{
			Schema: scenarioSchema,
			Filter: predicate.Filter{predicate.MustNew("lat", predicate.Eq, scalar.String("north"))},
		}, "cannot compare float64 column"},
		{"projection with aggregation", plan.Query{
			Schema:      scenarioSchema,
			Projection:  []string{"lat"},
			Aggregation: aggregate.Spec{Aggs: []aggregate.Agg{{Column: "val", Func: aggregate.Sum}}},
		}, "cannot be combined"},
		{"bad aggregation", plan.Query{
			Schema:      scenarioSchema,
			Aggregation: aggregate.Spec{GroupBy: []string{"height"}},
		}, "column 'height'"},
		{"bad policy", plan.Query{Schema: scenarioSchema, OnError: plan.ErrorPolicy(9)}, "error policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Plan(cat, tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, lserrors.ErrInvalidQuery)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseErrorPolicy(t *testing.T) {
	for in, want := range map[string]plan.ErrorPolicy{"": plan.Abort, "abort": plan.Abort, "SKIP": plan.Skip} {
		got, err := plan.ParseErrorPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := plan.ParseErrorPolicy("retry")
	assert.ErrorIs(t, err, lserrors.ErrInvalidQuery)
	assert.Equal(t, "skip", plan.Skip.String())
}
