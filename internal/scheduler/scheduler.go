// Package scheduler repeats scrape runs on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/metrics"
)

// Job is one scheduled run.
type Job func(ctx context.Context) error

// Scheduler invokes a Job immediately and then every interval. A failed or
// panicking run is logged and the loop continues. A tick that arrives while
// the previous run is still going is skipped.
type Scheduler struct {
	interval time.Duration
	job      Job
	alerter  *Alerter

	mu       sync.Mutex
	running  bool
	stopping bool
	wg       sync.WaitGroup
	now      func() time.Time
}

// New creates a Scheduler. alerter may be nil.
func New(interval time.Duration, job Job, alerter *Alerter) *Scheduler {
	return &Scheduler{interval: interval, job: job, alerter: alerter, now: time.Now}
}

// Run blocks until ctx ends, then waits for the in-flight run to return.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return eris.Errorf("scheduler: interval must be positive, got %s", s.interval)
	}
	log := zap.L().With(zap.String("component", "scheduler"))

	c := cron.New()
	if err := c.AddFunc("@every "+s.interval.String(), func() { s.Tick(ctx) }); err != nil {
		return eris.Wrap(err, "scheduler: add job")
	}
	log.Info("scheduler started", zap.Duration("interval", s.interval))

	s.Tick(ctx)
	c.Start()
	<-ctx.Done()
	c.Stop()

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.wg.Wait()

	log.Info("scheduler stopped")
	return nil
}

// Tick performs one guarded run. It reports whether the run happened. Once
// Run is stopping, ticks still fired by cron are ignored.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.mu.Lock()
	if s.stopping || ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if s.running {
		s.mu.Unlock()
		metrics.RunsTotal.WithLabelValues("skipped").Inc()
		zap.L().Warn("scheduler: previous run still in progress, skipping tick")
		return false
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	started := s.now()
	if err := s.safeRun(ctx); err != nil {
		s.report(ctx, started, err)
	}
	return true
}

func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scheduler: run panicked: %v", r)
		}
	}()
	return s.job(ctx)
}

func (s *Scheduler) report(ctx context.Context, started time.Time, err error) {
	at := started.Format(time.RFC3339)
	zap.L().Error("scheduler: run failed",
		zap.String("at", at),
		zap.String("error", err.Error()),
	)
	if ctx.Err() != nil {
		return
	}
	alert := Alert{
		Type:      AlertRunFailed,
		Severity:  "high",
		Message:   fmt.Sprintf("scrape run started %s failed: %s", at, err.Error()),
		Details:   map[string]any{"started_at": at},
		Timestamp: s.now().UTC(),
	}
	if aerr := s.alerter.Send(ctx, alert); aerr != nil {
		zap.L().Error("scheduler: failed to send alert", zap.Error(aerr))
	}
}
