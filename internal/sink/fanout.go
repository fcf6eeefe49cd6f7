package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geocover/internal/metrics"
	"github.com/sells-group/geocover/internal/model"
	"github.com/sells-group/geocover/internal/resilience"
)

// Report is the outcome of a Fanout write.
type Report struct {
	Written []string         `json:"written"`
	Failed  map[string]error `json:"-"`
}

// Err joins the sink failures, or nil when every sink succeeded.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)

	var err error
	for _, name := range names {
		ferr := r.Failed[name]
		if err == nil {
			err = eris.Wrapf(ferr, "sink: %s", name)
			continue
		}
		err = eris.Wrapf(err, "sink: %s: %v", name, ferr)
	}
	return err
}

// Fanout writes to every sink concurrently. A failing sink is logged and
// reported but never stops the others. Transient failures are retried.
type Fanout struct {
	sinks []Sink
	retry resilience.RetryConfig
	limit int
}

// NewFanout creates a Fanout over sinks.
func NewFanout(retry resilience.RetryConfig, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, retry: retry, limit: 4}
}

// Sinks returns the configured sink names.
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Write exports points to every sink.
func (f *Fanout) Write(ctx context.Context, run Run, points []model.PointRecord) *Report {
	rep := &Report{Failed: map[string]error{}}
	var mu sync.Mutex

	g := errgroup.Group{}
	g.SetLimit(f.limit)
	for _, s := range f.sinks {
		g.Go(func() error {
			log := zap.L().With(zap.String("component", "sink"), zap.String("sink", s.Name()), zap.String("run_id", run.ID))

			cfg := f.retry
			cfg.Name = "sink." + s.Name()
			err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
				return s.Write(ctx, run, points)
			})
			metrics.SinkWritesTotal.WithLabelValues(s.Name(), metrics.Result(err)).Inc()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("sink write failed", zap.Error(err))
				rep.Failed[s.Name()] = err
				return nil
			}
			log.Info("sink write complete", zap.Int("points", len(points)))
			rep.Written = append(rep.Written, s.Name())
			return nil
		})
	}
	_ = g.Wait()
	return rep
}
