// Package sink exports the points of a finished run to persistent and
// presentational targets.
package sink

import (
	"context"
	"time"

	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
)

// TableLayout selects the exported columns.
type TableLayout string

const (
	// LayoutFull exports all 14 record columns.
	LayoutFull TableLayout = "full"
	// LayoutCompact exports lat, lon, port, level and availability.
	LayoutCompact TableLayout = "compact"
)

// Columns returns the column names of the layout.
func (l TableLayout) Columns() []string {
	if l == LayoutCompact {
		return model.CompactColumns
	}
	return model.Columns
}

// Row returns the record values of the layout, in Columns order.
func (l TableLayout) Row(p model.PointRecord) []any {
	v := p.Values()
	return v[:len(l.Columns())]
}

// Run identifies the scrape run being exported.
type Run struct {
	ID        string
	StartedAt time.Time
	BBox      geo.Rect
}

// TableName returns the per-run table name, e.g. time_2024_03_01_14_05_09,
// from the run start in local time.
func (r Run) TableName() string {
	return TableName(r.StartedAt)
}

// TableName formats t as time_YYYY_MM_DD_HH_MM_SS.
func TableName(t time.Time) string {
	return "time_" + t.Local().Format("2006_01_02_15_04_05")
}

// Sink receives the exported points of one run.
type Sink interface {
	Name() string
	Write(ctx context.Context, run Run, points []model.PointRecord) error
}
