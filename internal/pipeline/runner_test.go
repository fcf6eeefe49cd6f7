package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geocover/internal/coverage"
	"github.com/sells-group/geocover/internal/engine"
	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
	"github.com/sells-group/geocover/internal/resilience"
	"github.com/sells-group/geocover/internal/results"
	"github.com/sells-group/geocover/internal/runlog"
	"github.com/sells-group/geocover/internal/sink"
	"github.com/sells-group/geocover/internal/source"
)

var testRoot = geo.Rect{NELat: 49.314549, NELon: -123.027079, SWLat: 49.185826, SWLon: -123.310445}

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	runs []sink.Run
	got  []model.PointRecord
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, run sink.Run, points []model.PointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	s.got = points
	return s.err
}

type fakeRunLog struct {
	mu        sync.Mutex
	started   []string
	completed map[string]runlog.Result
	failed    map[string]string
	startErr  error
}

func newFakeRunLog() *fakeRunLog {
	return &fakeRunLog{completed: map[string]runlog.Result{}, failed: map[string]string{}}
}

func (f *fakeRunLog) Start(_ context.Context, id string, _ geo.Rect, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return f.startErr
}

func (f *fakeRunLog) Complete(_ context.Context, id string, res runlog.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = res
	return nil
}

func (f *fakeRunLog) Fail(_ context.Context, id string, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = msg
	return nil
}

type errEngine struct{ err error }

func (e errEngine) Run(_ context.Context, _ geo.Rect, _ *results.Store) (*engine.Summary, error) {
	return &engine.Summary{Discarded: 3}, e.err
}

func fixtures() []source.Fixture {
	var out []source.Fixture
	for i := 0; i < 250; i++ {
		out = append(out, source.Fixture{
			Lat:   testRoot.SWLat + float64(i%25)*0.005,
			Lon:   testRoot.SWLon + float64(i/25)*0.02,
			Total: 2,
		})
	}
	return out
}

func newEngine() *engine.Engine {
	return engine.New(source.NewReplay(fixtures(), 100), geo.NewPlanner(0, 0), coverage.NewEvaluator(coverage.DefaultThreshold), engine.Options{Workers: 4})
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 14, 5, 9, 0, time.Local)
}

func quickRetry() resilience.RetryConfig {
	return resilience.RetryConfig{Attempts: 2, Backoff: time.Millisecond, Max: time.Millisecond}
}

func TestRunner_ExportsAndRecords(t *testing.T) {
	a := &recordingSink{name: "sqlite"}
	b := &recordingSink{name: "map"}
	runs := newFakeRunLog()

	r := NewRunner(newEngine(), testRoot, sink.NewFanout(quickRetry(), a, b), WithRunLog(runs), WithClock(fixedClock))
	r.newID = func() string { return "run-1" }

	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, "time_2024_03_01_14_05_09", rep.Table)
	assert.ElementsMatch(t, []string{"sqlite", "map"}, rep.Written)
	assert.Empty(t, rep.Failed)
	assert.Equal(t, 250, rep.Summary.Points)

	assert.Len(t, a.got, 250)
	assert.Len(t, b.got, 250)
	require.Len(t, a.runs, 1)
	assert.Equal(t, "run-1", a.runs[0].ID)
	assert.Equal(t, testRoot, a.runs[0].BBox)

	assert.Equal(t, []string{"run-1"}, runs.started)
	res, ok := runs.completed["run-1"]
	require.True(t, ok)
	assert.Equal(t, int64(250), res.Points)
	assert.Equal(t, rep.Table, res.Table)
	assert.Equal(t, rep.Summary.Queries, res.Queries)
	assert.Empty(t, runs.failed)
}

func TestRunner_EngineErrorSkipsExport(t *testing.T) {
	s := &recordingSink{name: "sqlite"}
	runs := newFakeRunLog()

	r := NewRunner(errEngine{err: context.Canceled}, testRoot, sink.NewFanout(quickRetry(), s), WithRunLog(runs))
	rep, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, rep.Summary)
	assert.Equal(t, int64(3), rep.Summary.Discarded)
	assert.Empty(t, s.runs)
	assert.Contains(t, runs.failed, rep.RunID)
	assert.Empty(t, runs.completed)
}

func TestRunner_SinkFailureFailsRun(t *testing.T) {
	good := &recordingSink{name: "sqlite"}
	bad := &recordingSink{name: "kafka", err: errors.New("broker unavailable")}
	runs := newFakeRunLog()

	r := NewRunner(newEngine(), testRoot, sink.NewFanout(quickRetry(), good, bad), WithRunLog(runs))
	rep, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")

	assert.Equal(t, []string{"sqlite"}, rep.Written)
	assert.Equal(t, []string{"kafka"}, rep.Failed)
	assert.Len(t, good.got, 250)
	assert.Contains(t, runs.failed[rep.RunID], "kafka")
}

func TestRunner_RunLogStartFailureIsNotFatal(t *testing.T) {
	runs := newFakeRunLog()
	runs.startErr = errors.New("connection refused")

	r := NewRunner(newEngine(), testRoot, sink.NewFanout(quickRetry(), &recordingSink{name: "map"}), WithRunLog(runs))
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs.completed, 1)
}

func TestRunner_WithoutRunLog(t *testing.T) {
	r := NewRunner(newEngine(), testRoot, sink.NewFanout(quickRetry(), &recordingSink{name: "map"}))
	rep, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.NotEqual(t, rep.RunID, NewRunner(nil, testRoot, nil).newID())
}
