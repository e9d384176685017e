package lakescan

import (
	"context"

	"github.com/paveg/lakescan/internal/aggregate"
	"github.com/paveg/lakescan/internal/catalog"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/monitoring"
	"github.com/paveg/lakescan/internal/plan"
	"github.com/paveg/lakescan/internal/predicate"
	"github.com/paveg/lakescan/internal/scalar"
)

type (
	Predicate   = predicate.Predicate
	Aggregation = aggregate.Agg
)

// Query builds a query against a dataset snapshot. Builder errors are
// reported by Run, Build and Explain.
type Query struct {
	ds  *Dataset
	cat *catalog.Catalog
	q   plan.Query
	err error
}

// Query starts a query over the dataset's current snapshot.
func (d *Dataset) Query() *Query {
	cat, s := d.snapshot()
	q := &Query{ds: d, cat: cat, q: plan.Query{Schema: s}}
	if policy, err := plan.ParseErrorPolicy(d.cfg.OnError); err == nil {
		q.q.OnError = policy
	}
	return q
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Filter adds predicates. All predicates must hold for a row to match.
func (q *Query) Filter(preds ...Predicate) *Query {
	q.q.Filter = append(q.q.Filter, preds...)
	return q
}

// Where adds one predicate from an operator symbol such as ">=" or "not in".
func (q *Query) Where(column, op string, values ...any) *Query {
	o, err := predicate.ParseOperator(op)
	if err != nil {
		return q.fail(err)
	}
	p, err := newPredicate(column, o, values...)
	if err != nil {
		return q.fail(err)
	}
	return q.Filter(p)
}

// FilterText adds the predicates of a textual filter such as
// "val > 5, name in ('a', 'b')".
func (q *Query) FilterText(text string) *Query {
	f, err := predicate.Parse(text)
	if err != nil {
		return q.fail(err)
	}
	return q.Filter(f...)
}

// Select sets the output columns and their order.
func (q *Query) Select(columns ...string) *Query {
	q.q.Projection = append(q.q.Projection, columns...)
	return q
}

// GroupBy sets the grouping columns of an aggregation.
func (q *Query) GroupBy(columns ...string) *Query {
	q.q.Aggregation.GroupBy = append(q.q.Aggregation.GroupBy, columns...)
	return q
}

// Agg adds aggregations.
func (q *Query) Agg(aggs ...Aggregation) *Query {
	q.q.Aggregation.Aggs = append(q.q.Aggregation.Aggs, aggs...)
	return q
}

// SkipErrors collects files that fail to read instead of failing the query.
func (q *Query) SkipErrors() *Query {
	q.q.OnError = plan.Skip
	return q
}

func (q *Query) plan() (*plan.Graph, error) {
	if q.err != nil {
		return nil, q.err
	}
	d := q.ds
	p := &plan.Planner{
		FS:                 d.opts.fs,
		Allocator:          d.opts.mem,
		BatchSize:          d.cfg.BatchSize,
		ParallelColumnRead: d.cfg.ParallelColumnRead,
		Logger:             d.opts.logger,
	}
	var g *plan.Graph
	err := monitoring.Resolve(d.opts.metrics).RecordOperation("plan", func() (err error) {
		g, err = p.Plan(q.cat, q.q)
		return err
	})
	return g, err
}

// Run plans and executes the query.
func (q *Query) Run(ctx context.Context) (*Result, error) {
	g, err := q.plan()
	if err != nil {
		return nil, err
	}
	return q.ds.engine.Run(ctx, g)
}

// Build plans the query without reading data. The caller closes the handle.
func (q *Query) Build() (*Handle, error) {
	g, err := q.plan()
	if err != nil {
		return nil, err
	}
	return q.ds.engine.Build(g), nil
}

// Explain renders the planned task graph.
func (q *Query) Explain() (string, error) {
	g, err := q.plan()
	if err != nil {
		return "", err
	}
	return g.String(), nil
}

// Column names a column for building predicates.
type Column string

// Col returns a column reference.
func Col(name string) Column { return Column(name) }

func (c Column) Eq(v any) Predicate       { return mustPredicate(string(c), predicate.Eq, v) }
func (c Column) NotEq(v any) Predicate    { return mustPredicate(string(c), predicate.NotEq, v) }
func (c Column) Lt(v any) Predicate       { return mustPredicate(string(c), predicate.Lt, v) }
func (c Column) LtEq(v any) Predicate     { return mustPredicate(string(c), predicate.LtEq, v) }
func (c Column) Gt(v any) Predicate       { return mustPredicate(string(c), predicate.Gt, v) }
func (c Column) GtEq(v any) Predicate     { return mustPredicate(string(c), predicate.GtEq, v) }
func (c Column) In(v ...any) Predicate    { return mustPredicate(string(c), predicate.In, v...) }
func (c Column) NotIn(v ...any) Predicate { return mustPredicate(string(c), predicate.NotIn, v...) }

// Predicate constructors. Literals are Go values: integers, floats, bool,
// string or time.Time. They panic on an unsupported literal type; use
// Query.Where to get an error instead.
func Eq(column string, v any) Predicate       { return Col(column).Eq(v) }
func NotEq(column string, v any) Predicate    { return Col(column).NotEq(v) }
func Lt(column string, v any) Predicate       { return Col(column).Lt(v) }
func LtEq(column string, v any) Predicate     { return Col(column).LtEq(v) }
func Gt(column string, v any) Predicate       { return Col(column).Gt(v) }
func GtEq(column string, v any) Predicate     { return Col(column).GtEq(v) }
func In(column string, v ...any) Predicate    { return Col(column).In(v...) }
func NotIn(column string, v ...any) Predicate { return Col(column).NotIn(v...) }

// Aggregation constructors.
func Mean(column string) Aggregation  { return aggregate.Agg{Column: column, Func: aggregate.Mean} }
func Sum(column string) Aggregation   { return aggregate.Agg{Column: column, Func: aggregate.Sum} }
func Count(column string) Aggregation { return aggregate.Agg{Column: column, Func: aggregate.Count} }
func Min(column string) Aggregation   { return aggregate.Agg{Column: column, Func: aggregate.Min} }
func Max(column string) Aggregation   { return aggregate.Agg{Column: column, Func: aggregate.Max} }

func newPredicate(column string, op predicate.Operator, values ...any) (Predicate, error) {
	lits := make([]scalar.Value, len(values))
	for i, v := range values {
		lit, err := scalar.Of(v)
		if err != nil {
			return Predicate{}, lserrors.NewInvalidQueryError("Filter", err.Error())
		}
		lits[i] = lit
	}
	return predicate.New(column, op, lits...)
}

func mustPredicate(column string, op predicate.Operator, values ...any) Predicate {
	p, err := newPredicate(column, op, values...)
	if err != nil {
		panic(err)
	}
	return p
}
