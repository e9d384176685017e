// Package engine executes task graphs, either eagerly with Run or lazily
// through a Handle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/paveg/lakescan/internal/aggregate"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/logging"
	"github.com/paveg/lakescan/internal/monitoring"
	"github.com/paveg/lakescan/internal/parallel"
	"github.com/paveg/lakescan/internal/plan"
	"github.com/paveg/lakescan/internal/scan"
	"github.com/paveg/lakescan/internal/table"
)

// Engine runs graphs on a shared worker pool.
type Engine struct {
	Pool             *parallel.WorkerPool
	Allocator        memory.Allocator
	Logger           *slog.Logger
	Metrics          *monitoring.Collector
	PreviewBatchSize int64
}

// New returns an engine with a pool of the given size.
func New(workers int, mem memory.Allocator, logger *slog.Logger, metrics *monitoring.Collector) *Engine {
	return &Engine{
		Pool:      parallel.NewWorkerPool(workers),
		Allocator: mem,
		Logger:    logger,
		Metrics:   metrics,
	}
}

func (e *Engine) allocator() memory.Allocator {
	if e.Allocator == nil {
		return memory.DefaultAllocator
	}
	return e.Allocator
}

func (e *Engine) logger(ctx context.Context) *slog.Logger {
	l := e.Logger
	if l == nil {
		l = slog.Default()
	}
	return logging.FromContext(ctx, l)
}

func (e *Engine) metrics() *monitoring.Collector { return monitoring.Resolve(e.Metrics) }

func (e *Engine) pool() *parallel.WorkerPool {
	if e.Pool == nil {
		e.Pool = parallel.NewWorkerPool(0)
	}
	return e.Pool
}

// scanOutput is what one scan task leaves behind: a batch, or for
// aggregate graphs the partial built from it.
type scanOutput struct {
	batch    *scan.Batch
	partial  *aggregate.Partial
	rowsRead int64
}

func (o scanOutput) release() {
	if o.batch != nil {
		o.batch.Release()
	}
}

// Run executes g now. Under the Abort policy the first failing file (in
// file order among those that ran) fails the query; under Skip the result
// lists failures and Result.Err reports them.
func (e *Engine) Run(ctx context.Context, g *plan.Graph) (*Result, error) {
	start := time.Now()
	qid := logging.QueryID(ctx)
	if qid == "" {
		qid = uuid.NewString()
		ctx = logging.WithQueryID(ctx, qid)
	}
	log := e.logger(ctx)

	res, err := e.run(ctx, g)
	var stats Stats
	if res != nil {
		stats = res.Stats
	}
	stats.QueryID = qid
	stats.FilesTotal = g.Total
	stats.FilesPruned = len(g.Pruned)
	stats.Duration = time.Since(start)
	if res != nil {
		res.Stats = stats
	}

	e.metrics().RecordQuery(monitoring.QueryMetrics{
		QueryID:      qid,
		Duration:     stats.Duration,
		FilesTotal:   stats.FilesTotal,
		FilesPruned:  stats.FilesPruned,
		FilesScanned: stats.FilesScanned,
		FilesFailed:  stats.FilesFailed,
		RowsRead:     stats.RowsRead,
		RowsReturned: stats.RowsReturned,
		Aggregated:   g.Query.Aggregated(),
		Failed:       err != nil,
	})
	if err != nil {
		log.Warn("query failed", "files_total", stats.FilesTotal, "files_pruned", stats.FilesPruned,
			"duration", stats.Duration, "error", err)
		return nil, err
	}
	log.Info("query completed",
		"files_total", stats.FilesTotal,
		"files_pruned", stats.FilesPruned,
		"files_scanned", stats.FilesScanned,
		"files_failed", stats.FilesFailed,
		"rows_read", stats.RowsRead,
		"rows_returned", stats.RowsReturned,
		"duration", stats.Duration,
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, g *plan.Graph) (*Result, error) {
	scans := g.ScanNodes()
	outputs, failures, err := e.scanAll(ctx, g, scans)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, o := range outputs {
			o.release()
		}
	}()

	res := &Result{Failures: append(g.ListingFailures(), failures...)}
	byNode := make(map[int]scanOutput, len(scans))
	for i, n := range scans {
		byNode[n.ID] = outputs[i]
		if outputs[i].batch != nil || outputs[i].partial != nil {
			res.Stats.FilesScanned++
		}
		res.Stats.RowsRead += outputs[i].rowsRead
	}
	res.Stats.FilesFailed = len(res.Failures)

	tbl, err := e.evaluate(g, byNode)
	if err != nil {
		return nil, err
	}
	res.Table = tbl
	res.Stats.RowsReturned = int64(tbl.NumRows())
	return res, nil
}

// scanAll runs every scan task on the pool. For aggregate graphs each task
// also folds its batch into a partial, so batches never outlive their task.
func (e *Engine) scanAll(ctx context.Context, g *plan.Graph, scans []*plan.Node) ([]scanOutput, []lserrors.FileFailure, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := e.logger(ctx)
	abort := g.Query.OnError == plan.Abort

	outputs, errs, ctxErr := parallel.RunAll(ctx, e.pool(), scans, func(ctx context.Context, _ int, n *plan.Node) (scanOutput, error) {
		out, err := e.scanNode(ctx, g, n)
		if err != nil && abort && !isCancellation(err) {
			cancel()
		}
		return out, err
	})

	releaseAll := func() {
		for _, o := range outputs {
			o.release()
		}
	}

	var failures []lserrors.FileFailure
	for i, err := range errs {
		if err == nil || isCancellation(err) {
			continue
		}
		path := scans[i].Task.File.Path
		if abort {
			releaseAll()
			return nil, nil, err
		}
		log.Warn("file skipped", "path", path, "error", err)
		failures = append(failures, lserrors.FileFailure{Path: path, Err: err})
	}
	if ctxErr != nil {
		releaseAll()
		return nil, nil, ctxErr
	}
	return outputs, failures, nil
}

func (e *Engine) scanNode(ctx context.Context, g *plan.Graph, n *plan.Node) (scanOutput, error) {
	start := time.Now()
	batch, err := scan.Scan(ctx, n.Task)
	m := monitoring.ScanMetrics{Path: n.Task.File.Path, Duration: time.Since(start), Failed: err != nil}
	if batch != nil {
		m.RowsRead = batch.RowsRead
	}
	if !isCancellation(err) {
		e.metrics().RecordScan(m)
	}
	if err != nil {
		return scanOutput{}, err
	}
	e.logger(ctx).Debug("file scanned", "path", batch.Path, "rows_read", batch.RowsRead, "rows", batch.NumRows())

	if !g.Query.Aggregated() {
		return scanOutput{batch: batch, rowsRead: batch.RowsRead}, nil
	}
	defer batch.Release()
	p, err := aggregate.NewPartial(g.Query.Aggregation, g.Query.Schema)
	if err != nil {
		return scanOutput{}, err
	}
	if err := p.Update(batch.Record); err != nil {
		return scanOutput{}, lserrors.NewReadError(batch.Path, err)
	}
	return scanOutput{partial: p, rowsRead: batch.RowsRead}, nil
}

// evaluate walks the non-scan nodes in order. Inputs of failed scans are
// absent and are skipped by Combine and Finalize.
func (e *Engine) evaluate(g *plan.Graph, scans map[int]scanOutput) (*table.Table, error) {
	partials := make(map[int]*aggregate.Partial)
	for _, n := range g.Nodes {
		switch n.Kind {
		case plan.ScanNode:
		case plan.PartialAggregateNode:
			if p := scans[n.Inputs[0]].partial; p != nil {
				partials[n.ID] = p
			}
		case plan.CombineNode:
			var in []*aggregate.Partial
			for _, id := range n.Inputs {
				if p, ok := partials[id]; ok {
					in = append(in, p)
				}
			}
			if len(in) == 0 {
				continue
			}
			p, err := aggregate.Combine(in...)
			if err != nil {
				return nil, lserrors.NewInternalError("Combine", err)
			}
			partials[n.ID] = p
		case plan.FinalizeNode:
			if g.Query.Aggregated() {
				return e.finalizeAggregate(g, n, partials)
			}
			return e.concat(g, n, scans)
		default:
			return nil, lserrors.NewInternalError("Execute", fmt.Errorf("unknown node kind %s", n.Kind))
		}
	}
	return nil, lserrors.NewInternalError("Execute", errors.New("graph has no Finalize node"))
}

func (e *Engine) finalizeAggregate(g *plan.Graph, n *plan.Node, partials map[int]*aggregate.Partial) (*table.Table, error) {
	var p *aggregate.Partial
	if len(n.Inputs) == 1 {
		p = partials[n.Inputs[0]]
	}
	if p == nil {
		empty, err := aggregate.NewPartial(g.Query.Aggregation, g.Query.Schema)
		if err != nil {
			return nil, err
		}
		p = empty
	}
	return p.Finalize(e.allocator())
}

func (e *Engine) concat(g *plan.Graph, n *plan.Node, scans map[int]scanOutput) (*table.Table, error) {
	recs := make([]arrow.Record, 0, len(n.Inputs))
	for _, id := range n.Inputs {
		if b := scans[id].batch; b != nil {
			recs = append(recs, b.Record)
		}
	}
	tbl, err := table.FromRecords(g.Output.ToArrow(), recs, e.allocator())
	if err != nil {
		return nil, lserrors.NewInternalError("Finalize", err)
	}
	return tbl, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
