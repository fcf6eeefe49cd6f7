package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds Do.
type RetryConfig struct {
	Attempts int           // total attempts including the first; default 3
	Backoff  time.Duration // delay before the first retry; default 500ms
	Max      time.Duration // backoff cap; default 30s
	Jitter   float64       // +/- fraction applied to each delay; default 0.25

	// Retryable overrides IsTransient.
	Retryable func(err error) bool
	// Name labels retry log lines.
	Name string
}

// DefaultRetryConfig returns three attempts with 500ms exponential backoff.
func DefaultRetryConfig(name string) RetryConfig {
	return RetryConfig{Attempts: 3, Backoff: 500 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.25, Name: name}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx ends. The last error is returned.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Max <= 0 {
		cfg.Max = 30 * time.Second
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == cfg.Attempts-1 {
			return err
		}

		zap.L().Warn("retrying after transient error",
			zap.String("operation", cfg.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		t := time.NewTimer(backoff(cfg, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.Backoff) * math.Pow(2, float64(attempt))
	if d > float64(cfg.Max) {
		d = float64(cfg.Max)
	}
	if cfg.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
