package plan

import (
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/lakescan/internal/catalog"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/predicate"
	"github.com/paveg/lakescan/internal/scan"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/paveg/lakescan/internal/validation"
	"github.com/spf13/afero"
)

// Planner builds task graphs. Its fields are copied into every Scan task.
type Planner struct {
	FS                 afero.Fs
	Allocator          memory.Allocator
	BatchSize          int64
	ParallelColumnRead bool
	Logger             *slog.Logger
}

func (p *Planner) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Plan validates q, prunes the catalog's files with the filter's
// statistics rules and emits the task graph.
func (p *Planner) Plan(cat *catalog.Catalog, q Query) (*Graph, error) {
	if err := validate(q); err != nil {
		return nil, err
	}
	prune, err := predicate.Compile(q.Filter, q.Schema)
	if err != nil {
		return nil, err
	}
	output, err := outputSchema(q)
	if err != nil {
		return nil, err
	}

	files := cat.Files()
	kept, pruned := prune.Select(files)
	for _, fd := range pruned {
		p.logger().Debug("file pruned", "path", fd.Path, "filter", prune.Filter().String())
	}

	g := &Graph{
		Query:    q,
		Output:   output,
		Prune:    prune,
		Files:    kept,
		Pruned:   pruned,
		Total:    len(files),
		Failures: cat.Failures(),
	}

	columns := q.scanColumns()
	residual := prune.Residual()
	var feeds []int
	for i, fd := range kept {
		s := g.add(&Node{Kind: ScanNode, File: i, Task: scan.Task{
			File:       fd,
			Schema:     q.Schema,
			Projection: columns,
			Residual:   residual,
			BatchSize:  p.BatchSize,
			Parallel:   p.ParallelColumnRead,
			Allocator:  p.Allocator,
			FS:         p.FS,
		}})
		if q.Aggregated() {
			s = g.add(&Node{Kind: PartialAggregateNode, File: i, Inputs: []int{s}})
		}
		feeds = append(feeds, s)
	}

	if q.Aggregated() {
		feeds = g.reduce(feeds)
	}
	g.Root = g.add(&Node{Kind: FinalizeNode, Inputs: feeds, File: -1})
	return g, nil
}

// reduce pairs adjacent partials level by level until one remains. An odd
// node at the end of a level is carried up unchanged.
func (g *Graph) reduce(level []int) []int {
	for len(level) > 1 {
		next := make([]int, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, g.add(&Node{Kind: CombineNode, File: -1, Inputs: []int{level[i], level[i+1]}}))
		}
		level = next
	}
	return level
}

func (g *Graph) add(n *Node) int {
	n.ID = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

func validate(q Query) error {
	// An empty schema is valid: a root without data files yields an empty
	// table.
	if q.Schema == nil {
		return lserrors.NewInvalidQueryError("Plan", "query has no schema")
	}
	if q.OnError != Abort && q.OnError != Skip {
		return lserrors.NewInvalidQueryError("Plan", "unknown error policy")
	}
	if q.Aggregated() && len(q.Projection) > 0 {
		return lserrors.NewInvalidQueryError("Plan", "projection and aggregation cannot be combined; aggregate output is group keys plus aggregates")
	}
	return validation.NewCompoundValidator(
		validation.NewNotEmptyValidator("Select", "column", q.Projection...),
		validation.NewColumnValidator(q.Schema, "Select", q.Projection...),
		validation.NewUniqueValidator("Select", "column", q.Projection...),
	).Validate()
}

func outputSchema(q Query) (*schema.Schema, error) {
	if q.Aggregated() {
		return q.Aggregation.OutputSchema(q.Schema)
	}
	if len(q.Projection) == 0 {
		return q.Schema, nil
	}
	return q.Schema.Select(q.Projection...)
}
