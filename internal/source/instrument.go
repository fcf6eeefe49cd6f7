package source

import (
	"context"
	"time"

	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/metrics"
	"github.com/sells-group/geocover/internal/model"
)

// Instrument records query counts, latency and page sizes under a source label.
type Instrument struct {
	next RegionQuery
	name string
}

// NewInstrument wraps next.
func NewInstrument(next RegionQuery, name string) *Instrument {
	return &Instrument{next: next, name: name}
}

// Fetch implements RegionQuery.
func (m *Instrument) Fetch(ctx context.Context, r geo.Rect) (*model.Response, error) {
	start := time.Now()
	resp, err := m.next.Fetch(ctx, r)
	metrics.QueryDurationMs.WithLabelValues(m.name).Observe(float64(time.Since(start).Milliseconds()))
	metrics.QueriesTotal.WithLabelValues(m.name, metrics.Result(err)).Inc()
	if err == nil && resp != nil && resp.StationList != nil {
		metrics.SummariesReturned.WithLabelValues(m.name).Observe(float64(len(resp.StationList.Summaries)))
	}
	return resp, err
}
