package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/logging"
	"github.com/paveg/lakescan/internal/monitoring"
	"github.com/paveg/lakescan/internal/plan"
	"github.com/paveg/lakescan/internal/scan"
	"github.com/paveg/lakescan/internal/table"
)

// Handle is a lazy query. Building one does no I/O. The first successful
// Materialize caches its result; later calls return the same Result until
// Close.
type Handle struct {
	engine *Engine
	graph  *plan.Graph
	ctx    context.Context
	stop   context.CancelFunc

	mu       sync.Mutex
	closed   bool
	result   *Result
	err      error
	inflight *call
}

type call struct {
	done chan struct{}
	res  *Result
	err  error
}

// Build wraps g in a handle.
func (e *Engine) Build(g *plan.Graph) *Handle {
	ctx, stop := context.WithCancel(context.Background())
	return &Handle{engine: e, graph: g, ctx: ctx, stop: stop}
}

// Graph returns the planned graph.
func (h *Handle) Graph() *plan.Graph { return h.graph }

// bind derives a context that is also cancelled by Close.
func (h *Handle) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(h.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Materialize runs the full query once. Concurrent callers share a single
// execution and later callers get the cached outcome, success or failure.
// The returned Result belongs to the handle: callers must not release it,
// Close does. A cancelled run is not cached.
func (h *Handle) Materialize(ctx context.Context) (*Result, error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, lserrors.ErrHandleClosed
		}
		if h.result != nil || h.err != nil {
			res, err := h.result, h.err
			h.mu.Unlock()
			return res, err
		}
		c := h.inflight
		if c == nil {
			c = &call{done: make(chan struct{})}
			h.inflight = c
			runCtx, cancel := h.bind(ctx)
			go h.materialize(runCtx, cancel, c)
		}
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
		}
		if c.err == nil {
			return c.res, nil
		}
		// Another caller's run was cancelled; start over with ours.
		if isCancellation(c.err) && ctx.Err() == nil && !h.isClosed() {
			continue
		}
		return nil, c.err
	}
}

func (h *Handle) materialize(ctx context.Context, cancel context.CancelFunc, c *call) {
	defer cancel()
	res, err := h.engine.Run(ctx, h.graph)

	h.mu.Lock()
	h.inflight = nil
	switch {
	case err == nil && h.closed:
		res.Release()
		res, err = nil, lserrors.ErrHandleClosed
	case err == nil:
		h.result = res
	case h.closed:
		err = lserrors.ErrHandleClosed
	case !isCancellation(err):
		h.err = err
	}
	c.res, c.err = res, err
	h.mu.Unlock()
	close(c.done)
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Preview returns up to n leading rows in file order. The caller releases
// the returned Result.
//
// Aggregate queries materialize and slice the cached result. Other queries
// scan files in order with the preview batch size and stop once n rows are
// collected, so a preview of a large dataset reads only the first files.
func (h *Handle) Preview(ctx context.Context, n int) (*Result, error) {
	if n < 0 {
		return nil, lserrors.NewInvalidQueryError("Preview", fmt.Sprintf("negative row count %d", n))
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, lserrors.ErrHandleClosed
	}
	cached := h.result
	if cached != nil {
		// Slicing shares buffers, so take references while Close is excluded.
		out := &Result{Table: cached.Table.Slice(0, n), Failures: cached.Failures, Stats: cached.Stats}
		h.mu.Unlock()
		return out, nil
	}
	h.mu.Unlock()

	if h.graph.Query.Aggregated() {
		res, err := h.Materialize(ctx)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.closed {
			return nil, lserrors.ErrHandleClosed
		}
		return &Result{Table: res.Table.Slice(0, n), Failures: res.Failures, Stats: res.Stats}, nil
	}

	ctx, cancel := h.bind(ctx)
	defer cancel()
	res, err := h.preview(ctx, int64(n))
	if err != nil && h.isClosed() {
		return nil, lserrors.ErrHandleClosed
	}
	return res, err
}

func (h *Handle) preview(ctx context.Context, n int64) (*Result, error) {
	e, g := h.engine, h.graph
	qid := logging.QueryID(ctx)
	if qid == "" {
		qid = uuid.NewString()
		ctx = logging.WithQueryID(ctx, qid)
	}
	log := e.logger(ctx)

	var (
		recs    []arrow.Record
		batches []*scan.Batch
		res     = &Result{
			Failures: g.ListingFailures(),
			Stats:    Stats{QueryID: qid, FilesTotal: g.Total, FilesPruned: len(g.Pruned)},
		}
	)
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	remaining := n
	for _, node := range g.ScanNodes() {
		if remaining == 0 {
			break
		}
		task := node.Task
		if e.PreviewBatchSize > 0 {
			task.BatchSize = e.PreviewBatchSize
		}
		start := time.Now()
		b, err := scan.ScanLimit(ctx, task, remaining)
		m := monitoring.ScanMetrics{Path: task.File.Path, Duration: time.Since(start), Failed: err != nil}
		if b != nil {
			m.RowsRead = b.RowsRead
		}
		if !isCancellation(err) {
			e.metrics().RecordScan(m)
		}
		if err != nil {
			if isCancellation(err) || g.Query.OnError == plan.Abort {
				return nil, err
			}
			log.Warn("file skipped", "path", task.File.Path, "error", err)
			res.Failures = append(res.Failures, lserrors.FileFailure{Path: task.File.Path, Err: err})
			continue
		}
		batches = append(batches, b)
		recs = append(recs, b.Record)
		remaining -= b.NumRows()
		res.Stats.FilesScanned++
		res.Stats.RowsRead += b.RowsRead
	}
	res.Stats.FilesFailed = len(res.Failures)

	tbl, err := table.FromRecords(g.Output.ToArrow(), recs, e.allocator())
	if err != nil {
		return nil, lserrors.NewInternalError("Preview", err)
	}
	res.Table = tbl
	res.Stats.RowsReturned = int64(tbl.NumRows())
	log.Debug("preview completed", "rows", tbl.NumRows(), "files_scanned", res.Stats.FilesScanned)
	return res, nil
}

// Close cancels any run in progress and releases the cached result. Calls
// after Close return ErrHandleClosed. Close is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	res := h.result
	h.result = nil
	h.mu.Unlock()

	h.stop()
	if res != nil {
		res.Release()
	}
	return nil
}
