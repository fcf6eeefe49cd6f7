// Package engine drives the adaptive subdivision of a bounding box until every
// sub-region has been covered by a non-truncated query.
package engine

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geocover/internal/coverage"
	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/results"
	"github.com/sells-group/geocover/internal/source"
)

// WorkItem is a rectangle waiting to be queried.
type WorkItem struct {
	Rect  geo.Rect
	Depth int
}

// Options configures an Engine.
type Options struct {
	Workers int // concurrent region queries; defaults to GOMAXPROCS
}

// Engine runs the query, evaluate, accept-or-split loop over a work queue.
type Engine struct {
	query   source.RegionQuery
	planner *geo.Planner
	eval    *coverage.Evaluator
	workers int
}

// New creates an engine.
func New(q source.RegionQuery, planner *geo.Planner, eval *coverage.Evaluator, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		query:   q,
		planner: planner,
		eval:    eval,
		workers: opts.Workers,
	}
}

// Run covers root, merging accepted records into store. The queue is seeded
// with root and the run ends when no item is pending or in flight.
//
// Per-item failures never abort the run. If ctx ends first, pending items are
// discarded, in-flight items finish, and the summary is returned together
// with the context error.
func (e *Engine) Run(ctx context.Context, root geo.Rect, store *results.Store) (*Summary, error) {
	log := zap.L().With(zap.String("component", "engine"), zap.Stringer("root", root))
	start := time.Now()

	var c counters
	jobs := make(chan WorkItem)
	done := make(chan []WorkItem)

	var g errgroup.Group
	for range e.workers {
		g.Go(func() error {
			for item := range jobs {
				done <- e.process(ctx, item, store, &c)
			}
			return nil
		})
	}

	stack := []WorkItem{{Rect: root}}
	inflight := 0
	ctxDone := ctx.Done()

	for len(stack) > 0 || inflight > 0 {
		var send chan<- WorkItem
		var next WorkItem
		if len(stack) > 0 {
			send = jobs
			next = stack[len(stack)-1]
		}

		select {
		case send <- next:
			stack = stack[:len(stack)-1]
			inflight++
		case children := <-done:
			inflight--
			stack = append(stack, children...)
		case <-ctxDone:
			ctxDone = nil
			c.discarded.Add(int64(len(stack)))
			log.Warn("run cancelled, discarding pending regions",
				zap.Int("pending", len(stack)),
				zap.Int("in_flight", inflight),
				zap.Error(ctx.Err()),
			)
			stack = nil
		}

		// Children reported after cancellation are dropped as well.
		if ctxDone == nil && len(stack) > 0 {
			c.discarded.Add(int64(len(stack)))
			stack = nil
		}
	}
	close(jobs)
	_ = g.Wait()

	sum := c.summary(store.Len(), time.Since(start))
	log.Info("run complete",
		zap.Int64("queries", sum.Queries),
		zap.Int64("accepted", sum.Accepted),
		zap.Int64("subdivided", sum.Subdivided),
		zap.Int64("forced", sum.Forced),
		zap.Int64("failed", sum.Failed),
		zap.Int64("malformed", sum.Malformed),
		zap.Int64("discarded", sum.Discarded),
		zap.Int("max_depth", sum.MaxDepth),
		zap.Int("points", sum.Points),
		zap.Duration("elapsed", sum.Elapsed),
	)

	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "engine: run interrupted")
	}
	return sum, nil
}

// process handles one item and returns the children to enqueue.
func (e *Engine) process(ctx context.Context, item WorkItem, store *results.Store, c *counters) []WorkItem {
	if ctx.Err() != nil {
		c.discarded.Add(1)
		return nil
	}
	c.observeDepth(item.Depth)

	c.queries.Add(1)
	resp, err := e.query.Fetch(ctx, item.Rect)
	if err != nil && ctx.Err() != nil {
		// aborted by cancellation, not an upstream failure
		c.discarded.Add(1)
		return nil
	}
	if err != nil {
		c.failed.Add(1)
		zap.L().Warn("region query failed, treating region as empty",
			zap.String("component", "engine"),
			zap.Stringer("rect", item.Rect),
			zap.Int("depth", item.Depth),
			zap.Error(err),
		)
		return nil
	}

	out := e.eval.Evaluate(resp)
	if out.Malformed {
		c.malformed.Add(1)
	}

	switch out.Kind {
	case coverage.Empty:
		c.empty.Add(1)
		c.accepted.Add(1)
		return nil

	case coverage.Records:
		store.Merge(out.Records...)
		c.accepted.Add(1)
		return nil

	default: // coverage.Overflow
		rects := e.planner.Split(item.Rect)
		if len(rects) == 0 {
			zap.L().Debug("terminal region overflowed, accepting partial page",
				zap.String("component", "engine"),
				zap.Stringer("rect", item.Rect),
				zap.Int("records", len(out.Records)),
			)
			store.Merge(out.Records...)
			c.forced.Add(1)
			c.accepted.Add(1)
			return nil
		}

		c.subdivided.Add(1)
		children := make([]WorkItem, len(rects))
		for i, r := range rects {
			children[i] = WorkItem{Rect: r, Depth: item.Depth + 1}
		}
		return children
	}
}

type counters struct {
	queries    atomic.Int64
	accepted   atomic.Int64
	empty      atomic.Int64
	subdivided atomic.Int64
	forced     atomic.Int64
	failed     atomic.Int64
	malformed  atomic.Int64
	discarded  atomic.Int64
	maxDepth   atomic.Int64
}

func (c *counters) observeDepth(d int) {
	for {
		cur := c.maxDepth.Load()
		if int64(d) <= cur || c.maxDepth.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

func (c *counters) summary(points int, elapsed time.Duration) *Summary {
	return &Summary{
		Queries:    c.queries.Load(),
		Accepted:   c.accepted.Load(),
		Empty:      c.empty.Load(),
		Subdivided: c.subdivided.Load(),
		Forced:     c.forced.Load(),
		Failed:     c.failed.Load(),
		Malformed:  c.malformed.Load(),
		Discarded:  c.discarded.Load(),
		MaxDepth:   int(c.maxDepth.Load()),
		Points:     points,
		Elapsed:    elapsed,
	}
}
