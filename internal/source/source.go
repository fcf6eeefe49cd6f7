// Package source defines the region query boundary between the scrape engine
// and a station data provider, plus decorators that add caching, a circuit
// breaker and metrics around any provider.
package source

import (
	"context"

	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
)

// RegionQuery fetches one page of stations for a bounding box. Implementations
// must be safe for concurrent use.
type RegionQuery interface {
	Fetch(ctx context.Context, r geo.Rect) (*model.Response, error)
}

// Func adapts a function to RegionQuery.
type Func func(ctx context.Context, r geo.Rect) (*model.Response, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, r geo.Rect) (*model.Response, error) {
	return f(ctx, r)
}
