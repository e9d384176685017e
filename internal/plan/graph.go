package plan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paveg/lakescan/internal/catalog"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/predicate"
	"github.com/paveg/lakescan/internal/scan"
	"github.com/paveg/lakescan/internal/schema"
)

// NodeKind identifies the operation of a graph node.
type NodeKind uint8

const (
	ScanNode NodeKind = iota + 1
	PartialAggregateNode
	CombineNode
	FinalizeNode
)

func (k NodeKind) String() string {
	switch k {
	case ScanNode:
		return "Scan"
	case PartialAggregateNode:
		return "PartialAggregate"
	case CombineNode:
		return "Combine"
	case FinalizeNode:
		return "Finalize"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// Node is one task. Inputs refer to earlier nodes by ID, so the node slice
// of a Graph is in topological order.
type Node struct {
	ID     int
	Kind   NodeKind
	Inputs []int
	Task   scan.Task // set on Scan nodes
	File   int       // index into Graph.Files for Scan and PartialAggregate nodes
}

// Graph is a planned query. It holds no open resources; building one does
// no data I/O.
type Graph struct {
	Query    Query
	Output   *schema.Schema
	Prune    *predicate.PrunePlan
	Files    []catalog.FileDescriptor // files to scan, catalog order
	Pruned   []catalog.FileDescriptor
	Total    int                   // files in the catalog
	Failures []lserrors.FileFailure // files the catalog skipped while listing
	Nodes    []*Node
	Root     int
}

// ListingFailures returns a copy of Failures for a result to extend.
func (g *Graph) ListingFailures() []lserrors.FileFailure {
	return append([]lserrors.FileFailure(nil), g.Failures...)
}

// Node returns the node with the given ID.
func (g *Graph) Node(id int) *Node { return g.Nodes[id] }

// ScanNodes returns the scan nodes in file order.
func (g *Graph) ScanNodes() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Kind == ScanNode {
			out = append(out, n)
		}
	}
	return out
}

// Consumer returns the node fed by the scan with the given ID: its
// PartialAggregate for aggregate plans, otherwise the Finalize node.
func (g *Graph) Consumer(scanID int) *Node {
	for _, n := range g.Nodes[scanID+1:] {
		for _, in := range n.Inputs {
			if in == scanID {
				return n
			}
		}
	}
	return nil
}

// String renders the graph from its root, one node per line.
func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "files: %d total, %d pruned, %d scanned\n", g.Total, len(g.Pruned), len(g.Files))
	if len(g.Failures) > 0 {
		fmt.Fprintf(&b, "unreadable: %d skipped while listing\n", len(g.Failures))
	}
	if g.Prune != nil && !g.Prune.Empty() {
		fmt.Fprintf(&b, "filter: %s\n", g.Prune.Filter())
	}
	g.render(&b, g.Root, 0)
	return b.String()
}

func (g *Graph) render(b *strings.Builder, id, depth int) {
	n := g.Nodes[id]
	b.WriteString(strings.Repeat("  ", depth))
	switch n.Kind {
	case ScanNode:
		fmt.Fprintf(b, "Scan #%d %s [%s]", n.ID, filepath.Base(n.Task.File.Path), strings.Join(n.Task.Projection, ", "))
		if n.Task.Residual != nil {
			fmt.Fprintf(b, " where %s", g.Prune.Filter())
		}
	case PartialAggregateNode:
		fmt.Fprintf(b, "PartialAggregate #%d %s", n.ID, g.Query.Aggregation)
	case CombineNode:
		fmt.Fprintf(b, "Combine #%d", n.ID)
	case FinalizeNode:
		fmt.Fprintf(b, "Finalize #%d -> [%s]", n.ID, strings.Join(g.Output.Names(), ", "))
	}
	b.WriteByte('\n')
	for _, in := range n.Inputs {
		g.render(b, in, depth+1)
	}
}
