// Package pipeline runs one complete scrape: partition the bounding box,
// collect every station, export the points and record the run.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/engine"
	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/metrics"
	"github.com/sells-group/geocover/internal/model"
	"github.com/sells-group/geocover/internal/results"
	"github.com/sells-group/geocover/internal/runlog"
	"github.com/sells-group/geocover/internal/sink"
)

// Engine partitions a bounding box into a result store.
type Engine interface {
	Run(ctx context.Context, root geo.Rect, store *results.Store) (*engine.Summary, error)
}

// Exporter writes a run's points to its sinks.
type Exporter interface {
	Write(ctx context.Context, run sink.Run, points []model.PointRecord) *sink.Report
}

// RunLog records run lifecycle. *runlog.Log satisfies it.
type RunLog interface {
	Start(ctx context.Context, id string, bbox geo.Rect, startedAt time.Time) error
	Complete(ctx context.Context, id string, res runlog.Result) error
	Fail(ctx context.Context, id string, errMsg string) error
}

// Report describes a finished run.
type Report struct {
	RunID     string          `json:"run_id"`
	Table     string          `json:"table"`
	StartedAt time.Time       `json:"started_at"`
	BBox      geo.Rect        `json:"bbox"`
	Summary   *engine.Summary `json:"summary"`
	Written   []string        `json:"written"`
	Failed    []string        `json:"failed,omitempty"`
}

// Runner executes full runs. It is safe to call Run sequentially; the
// scheduler guarantees runs never overlap.
type Runner struct {
	engine Engine
	root   geo.Rect
	export Exporter
	runs   RunLog

	now   func() time.Time
	newID func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithRunLog records runs in log.
func WithRunLog(log RunLog) Option {
	return func(r *Runner) { r.runs = log }
}

// WithClock overrides the run start clock.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner scraping root.
func NewRunner(e Engine, root geo.Rect, export Exporter, opts ...Option) *Runner {
	r := &Runner{
		engine: e,
		root:   root,
		export: export,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run scrapes the bounding box, exports the points and records the run. An
// interrupted scrape is recorded as failed and not exported. A sink failure
// fails the run after every other sink has been written.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rep := &Report{RunID: r.newID(), StartedAt: r.now(), BBox: r.root}
	run := sink.Run{ID: rep.RunID, StartedAt: rep.StartedAt, BBox: r.root}
	rep.Table = run.TableName()

	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", rep.RunID))
	log.Info("run started", zap.Stringer("bbox", r.root), zap.String("table", rep.Table))

	if r.runs != nil {
		if err := r.runs.Start(ctx, rep.RunID, r.root, rep.StartedAt); err != nil {
			log.Warn("run log start failed", zap.Error(err))
		}
	}

	store := results.NewStore()
	sum, err := r.engine.Run(ctx, r.root, store)
	rep.Summary = sum
	if err != nil {
		r.fail(log, rep, err)
		return rep, eris.Wrapf(err, "pipeline: run %s", rep.RunID)
	}

	points := store.Export()
	sinkRep := r.export.Write(ctx, run, points)
	rep.Written = sinkRep.Written
	for name := range sinkRep.Failed {
		rep.Failed = append(rep.Failed, name)
	}
	sort.Strings(rep.Failed)

	if err := sinkRep.Err(); err != nil {
		r.fail(log, rep, err)
		return rep, eris.Wrapf(err, "pipeline: export run %s", rep.RunID)
	}

	metrics.RunsTotal.WithLabelValues(runlog.StatusComplete).Inc()
	metrics.RunDurationSeconds.Observe(time.Since(rep.StartedAt).Seconds())
	metrics.RunPoints.Set(float64(len(points)))
	metrics.RunWarnings.Set(float64(sum.Warnings()))

	if r.runs != nil {
		err := r.runs.Complete(ctx, rep.RunID, runlog.Result{
			Table:    rep.Table,
			Points:   int64(len(points)),
			Queries:  sum.Queries,
			Warnings: sum.Warnings(),
			Summary:  sum,
		})
		if err != nil {
			log.Warn("run log complete failed", zap.Error(err))
		}
	}

	log.Info("run complete",
		zap.Int("points", len(points)),
		zap.Int64("queries", sum.Queries),
		zap.Int64("warnings", sum.Warnings()),
		zap.Strings("sinks", rep.Written),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return rep, nil
}

func (r *Runner) fail(log *zap.Logger, rep *Report, cause error) {
	metrics.RunsTotal.WithLabelValues(runlog.StatusFailed).Inc()
	log.Error("run failed", zap.Error(cause))
	if r.runs == nil {
		return
	}
	// the run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.runs.Fail(ctx, rep.RunID, cause.Error()); err != nil {
		log.Warn("run log fail failed", zap.Error(err))
	}
}
