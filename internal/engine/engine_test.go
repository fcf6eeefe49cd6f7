package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geocover/internal/coverage"
	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
	"github.com/sells-group/geocover/internal/results"
	"github.com/sells-group/geocover/internal/source"
)

var root = geo.Rect{NELat: 1, NELon: 1, SWLat: 0, SWLon: 0}

// pointsIn returns n distinct records near the centre of r.
func pointsIn(r geo.Rect, n int) []model.PointRecord {
	cLat := r.SWLat + r.LatSpan()/2
	cLon := r.SWLon + r.LonSpan()/2
	out := make([]model.PointRecord, n)
	for i := range out {
		out[i] = model.PointRecord{
			Lat:          cLat + float64(i)*r.LatSpan()/1000,
			Lon:          cLon,
			TotalPorts:   2,
			Availability: model.Availability{Available: i % 2, Total: 2},
		}
	}
	return out
}

func responseOf(recs []model.PointRecord) *model.Response {
	summaries := make([]model.StationSummary, len(recs))
	for i, r := range recs {
		summaries[i] = model.SummaryOf(r)
	}
	return model.NewResponse(summaries)
}

func newEngine(q source.RegionQuery, latLimit, lonLimit float64, workers int) *Engine {
	return New(q, geo.NewPlanner(latLimit, lonLimit), coverage.NewEvaluator(coverage.DefaultThreshold), Options{Workers: workers})
}

func TestRun_RootOverflowChildrenComplete(t *testing.T) {
	rootRecords := make([]model.PointRecord, 50)
	for i := range rootRecords {
		// Coordinates no child ever returns.
		rootRecords[i] = model.PointRecord{Lat: 0.001 * float64(i), Lon: 0.999, TotalPorts: 1}
	}

	var mu sync.Mutex
	childRecords := map[model.Key]bool{}
	q := source.Func(func(_ context.Context, r geo.Rect) (*model.Response, error) {
		if r == root {
			return responseOf(rootRecords), nil
		}
		recs := pointsIn(r, 10)
		mu.Lock()
		for _, rec := range recs {
			childRecords[rec.Key()] = true
		}
		mu.Unlock()
		return responseOf(recs), nil
	})

	store := results.NewStore()
	sum, err := newEngine(q, 0.01, 0.01, 4).Run(context.Background(), root, store)
	require.NoError(t, err)

	assert.Equal(t, int64(13), sum.Queries)
	assert.Equal(t, int64(1), sum.Subdivided)
	assert.Equal(t, int64(12), sum.Accepted)
	assert.Equal(t, 1, sum.MaxDepth)
	assert.True(t, sum.Complete())

	assert.Equal(t, len(childRecords), store.Len())
	assert.Equal(t, 120, store.Len())
	for _, rec := range store.Export() {
		assert.True(t, childRecords[rec.Key()], "unexpected record %v", rec.Key())
	}
	for _, rec := range rootRecords {
		_, ok := store.Get(rec.Key())
		assert.False(t, ok, "root page must not be accepted")
	}
}

func TestRun_AlwaysEmpty(t *testing.T) {
	var calls atomic.Int64
	q := source.Func(func(context.Context, geo.Rect) (*model.Response, error) {
		calls.Add(1)
		return model.NewResponse(nil), nil
	})

	store := results.NewStore()
	sum, err := newEngine(q, 0, 0, 4).Run(context.Background(), root, store)
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, int64(1), sum.Queries)
	assert.Equal(t, int64(1), sum.Empty)
	assert.Zero(t, store.Len())
}

func TestRun_AlwaysOverflowTerminatesAtLimits(t *testing.T) {
	planner := geo.NewPlanner(0.1, 0.1)

	var mu sync.Mutex
	returned := map[geo.Rect][]model.PointRecord{}
	q := source.Func(func(_ context.Context, r geo.Rect) (*model.Response, error) {
		recs := pointsIn(r, 50)
		mu.Lock()
		returned[r] = recs
		mu.Unlock()
		return responseOf(recs), nil
	})

	store := results.NewStore()
	e := New(q, planner, coverage.NewEvaluator(0), Options{Workers: 8})
	sum, err := e.Run(context.Background(), root, store)
	require.NoError(t, err)

	// 1x1 splits 3x4 into 0.33x0.25 cells, which split 4x3 into 0.083x0.083 leaves.
	assert.Equal(t, int64(1+12+144), sum.Queries)
	assert.Equal(t, int64(144), sum.Forced)
	assert.Equal(t, int64(13), sum.Subdivided)
	assert.Equal(t, 2, sum.MaxDepth)
	assert.Equal(t, int64(144), sum.Warnings())

	expected := map[model.Key]model.PointRecord{}
	for r, recs := range returned {
		if !planner.Terminal(r) {
			continue
		}
		for _, rec := range recs {
			expected[rec.Key()] = rec
		}
	}
	assert.Equal(t, len(expected), store.Len())
	assert.Equal(t, 144*50, store.Len())
	for _, rec := range store.Export() {
		want, ok := expected[rec.Key()]
		require.True(t, ok)
		assert.Equal(t, want, rec)
	}
}

func TestRun_QueryFailureIsolated(t *testing.T) {
	var failed geo.Rect
	var once sync.Once
	q := source.Func(func(_ context.Context, r geo.Rect) (*model.Response, error) {
		if r == root {
			return responseOf(pointsIn(r, 60)), nil
		}
		var fail bool
		once.Do(func() { failed, fail = r, true })
		if fail {
			return nil, errors.New("dial tcp: i/o timeout")
		}
		return responseOf(pointsIn(r, 5)), nil
	})

	store := results.NewStore()
	sum, err := newEngine(q, 0.01, 0.01, 3).Run(context.Background(), root, store)
	require.NoError(t, err)

	assert.Equal(t, int64(13), sum.Queries)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Equal(t, int64(11), sum.Accepted)
	assert.Equal(t, int64(1), sum.Warnings())
	assert.False(t, sum.Complete())
	assert.Equal(t, 11*5, store.Len())
	for _, rec := range store.Export() {
		assert.False(t, failed.Contains(rec.Lat, rec.Lon), "failed region must contribute nothing")
	}
}

func TestRun_MalformedCountsAsEmpty(t *testing.T) {
	q := source.Func(func(context.Context, geo.Rect) (*model.Response, error) {
		return &model.Response{}, nil
	})

	store := results.NewStore()
	sum, err := newEngine(q, 0, 0, 1).Run(context.Background(), root, store)
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Malformed)
	assert.Equal(t, int64(1), sum.Empty)
	assert.Zero(t, store.Len())
}

func TestRun_CancelStopsNewQueries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	q := source.Func(func(_ context.Context, r geo.Rect) (*model.Response, error) {
		calls.Add(1)
		cancel()
		return responseOf(pointsIn(r, 50)), nil
	})

	store := results.NewStore()
	sum, err := newEngine(q, 0.01, 0.01, 4).Run(ctx, root, store)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, int64(1), sum.Queries)
	assert.Equal(t, int64(12), sum.Discarded)
	assert.Zero(t, store.Len())
}

func TestRun_CancelDuringQueryIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := source.Func(func(ctx context.Context, _ geo.Rect) (*model.Response, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	sum, err := newEngine(q, 0.01, 0.01, 1).Run(ctx, root, results.NewStore())
	require.Error(t, err)
	assert.Equal(t, int64(1), sum.Queries)
	assert.Zero(t, sum.Failed)
	assert.Equal(t, int64(1), sum.Discarded)
	assert.Zero(t, sum.Warnings())
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := source.Func(func(context.Context, geo.Rect) (*model.Response, error) {
		t.Error("no query expected")
		return nil, nil
	})

	sum, err := newEngine(q, 0, 0, 2).Run(ctx, root, results.NewStore())
	require.Error(t, err)
	assert.Zero(t, sum.Queries)
	assert.Equal(t, int64(1), sum.Discarded)
}

func TestRun_WorkerLimit(t *testing.T) {
	const workers = 3
	var active, peak atomic.Int64
	q := source.Func(func(_ context.Context, r geo.Rect) (*model.Response, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		if r == root {
			return responseOf(pointsIn(r, 50)), nil
		}
		return responseOf(pointsIn(r, 1)), nil
	})

	sum, err := newEngine(q, 0.01, 0.01, workers).Run(context.Background(), root, results.NewStore())
	require.NoError(t, err)
	assert.Equal(t, int64(13), sum.Queries)
	assert.LessOrEqual(t, peak.Load(), int64(workers))
}

func TestRun_InvalidRootIsTerminal(t *testing.T) {
	inverted := geo.Rect{NELat: 0, NELon: 0, SWLat: 1, SWLon: 1}
	q := source.Func(func(_ context.Context, r geo.Rect) (*model.Response, error) {
		return responseOf(pointsIn(root, 50)), nil
	})

	store := results.NewStore()
	sum, err := newEngine(q, 0, 0, 2).Run(context.Background(), inverted, store)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Queries)
	assert.Equal(t, int64(1), sum.Forced)
	assert.Equal(t, 50, store.Len())
}

func TestNew_DefaultWorkers(t *testing.T) {
	e := New(nil, geo.NewPlanner(0, 0), coverage.NewEvaluator(0), Options{})
	assert.Positive(t, e.workers)
}

func TestSummary_Warnings(t *testing.T) {
	s := &Summary{Failed: 1, Malformed: 2, Forced: 3}
	assert.Equal(t, int64(6), s.Warnings())
	assert.False(t, s.Complete())
	assert.True(t, (&Summary{}).Complete())
	assert.False(t, (&Summary{Discarded: 1}).Complete())
}
