// Package parallel provides the bounded worker pool that runs independent
// scan tasks.
//
// Results are always stored by input index, so callers can reduce them in a
// fixed order regardless of which task finished first. Cancellation is
// cooperative: once the context is done no new task starts, while tasks
// already running finish their current unit of work.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// WorkerPool bounds how many tasks run at once.
type WorkerPool struct {
	numWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new worker pool. A non-positive size means
// runtime.NumCPU().
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int { return wp.numWorkers }

// Close shuts down the worker pool. Runs in progress stop starting tasks.
func (wp *WorkerPool) Close() {
	wp.cancel()
}

// bind derives a context that is done when either ctx or the pool is.
func (wp *WorkerPool) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if wp.ctx.Err() != nil {
		cancel()
		return ctx, cancel
	}
	stop := context.AfterFunc(wp.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Run executes task for every item and returns results in input order. The
// first error cancels the run: no further task starts and that error is
// returned.
func Run[T, R any](
	ctx context.Context,
	wp *WorkerPool,
	items []T,
	task func(context.Context, int, T) (R, error),
) ([]R, error) {
	ctx, cancel := wp.bind(ctx)
	defer cancel()

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(wp.numWorkers)

	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := task(gctx, i, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunAll executes task for every item without stopping on task errors.
// errs[i] holds item i's error. The returned error is non-nil only when the
// context was cancelled, in which case tasks that never started carry the
// context error.
func RunAll[T, R any](
	ctx context.Context,
	wp *WorkerPool,
	items []T,
	task func(context.Context, int, T) (R, error),
) (results []R, errs []error, err error) {
	ctx, cancel := wp.bind(ctx)
	defer cancel()

	results = make([]R, len(items))
	errs = make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(wp.numWorkers)

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = task(ctx, i, item)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs, ctx.Err()
}
