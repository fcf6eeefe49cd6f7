package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
	"github.com/sells-group/geocover/internal/resilience"
)

// DefaultTimeout bounds a single region query.
const DefaultTimeout = 20 * time.Second

// Guard bounds every call with a timeout and routes it through a circuit
// breaker. With the breaker open, calls fail immediately with
// resilience.ErrOpen, so the engine drains its queue instead of waiting on
// a dead upstream.
type Guard struct {
	next    RegionQuery
	timeout time.Duration
	breaker *resilience.Breaker
}

// NewGuard wraps next. A nil breaker disables fail-fast; a non-positive
// timeout uses DefaultTimeout.
func NewGuard(next RegionQuery, timeout time.Duration, breaker *resilience.Breaker) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{next: next, timeout: timeout, breaker: breaker}
}

// Fetch implements RegionQuery.
func (g *Guard) Fetch(ctx context.Context, r geo.Rect) (*model.Response, error) {
	call := func(ctx context.Context) (*model.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		resp, err := g.next.Fetch(ctx, r)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, resilience.Transient(eris.Wrapf(err, "source: query %s timed out after %s", r, g.timeout), 0)
		}
		return resp, err
	}
	if g.breaker == nil {
		return call(ctx)
	}
	return resilience.Call(ctx, g.breaker, call)
}

// TripsBreaker reports whether a query error should count against the
// breaker. Run cancellation and non-transient errors do not.
func TripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return resilience.IsTransient(err)
}
