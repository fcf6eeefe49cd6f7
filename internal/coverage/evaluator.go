// Package coverage decides whether a region query returned the whole region
// or was silently truncated by the source's page cap.
package coverage

import (
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/model"
)

// DefaultThreshold is the record count at which a page is considered truncated.
// It sits below the requested page size (100) on purpose: the source has been
// observed to cap pages at about 50 regardless of page_size.
const DefaultThreshold = 50

// Kind classifies a query result.
type Kind int

const (
	// Empty means the region holds no stations (or the page was unusable).
	Empty Kind = iota
	// Records means the page is complete and final for the region.
	Records
	// Overflow means the page hit the threshold and the region must be split.
	Overflow
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Records:
		return "records"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Outcome is the evaluation of one page. Records is populated for both
// Records and Overflow; an Overflow page's records are only used when the
// region cannot be split any further.
type Outcome struct {
	Kind      Kind
	Records   []model.PointRecord
	Count     int  // summaries on the page, including skipped ones
	Skipped   int  // summaries without coordinates or port counts
	Malformed bool // body lacked station_list.summaries
}

// Evaluator classifies region query responses.
type Evaluator struct {
	threshold int
}

// NewEvaluator creates an evaluator. A non-positive threshold uses DefaultThreshold.
func NewEvaluator(threshold int) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Evaluator{threshold: threshold}
}

// Threshold returns the overflow record count.
func (e *Evaluator) Threshold() int { return e.threshold }

// Evaluate classifies resp. A nil response or one without station summaries
// is Empty and flagged Malformed.
func (e *Evaluator) Evaluate(resp *model.Response) Outcome {
	if resp == nil || resp.StationList == nil || resp.StationList.Summaries == nil {
		zap.L().Warn("coverage: response has no station_list.summaries, treating as empty",
			zap.String("component", "coverage"),
			zap.Bool("nil_body", resp == nil),
		)
		return Outcome{Kind: Empty, Malformed: true}
	}

	list := resp.StationList
	out := Outcome{Count: len(list.Summaries)}
	if out.Count == 0 {
		out.Kind = Empty
		return out
	}

	portTypeInfo := model.Text(list.PortTypeInfo)
	out.Records = make([]model.PointRecord, 0, out.Count)
	for i := range list.Summaries {
		rec, ok := Extract(&list.Summaries[i], portTypeInfo)
		if !ok {
			out.Skipped++
			continue
		}
		out.Records = append(out.Records, rec)
	}

	if out.Skipped > 0 {
		zap.L().Debug("coverage: skipped summaries without coordinates or port counts",
			zap.String("component", "coverage"),
			zap.Int("skipped", out.Skipped),
		)
	}

	switch {
	case out.Count >= e.threshold:
		out.Kind = Overflow
	case len(out.Records) == 0:
		out.Kind = Empty
	default:
		out.Kind = Records
	}
	return out
}

// Extract builds a PointRecord from one summary. It reports false when the
// summary lacks coordinates or port counts. Optional attributes default to
// model.NotSpecified.
func Extract(s *model.StationSummary, portTypeInfo string) (model.PointRecord, bool) {
	if s.Lat == nil || s.Lon == nil || s.PortCount == nil || s.PortCount.Available == nil || s.PortCount.Total == nil {
		return model.PointRecord{}, false
	}

	return model.PointRecord{
		Lat:             *s.Lat,
		Lon:             *s.Lon,
		TotalPorts:      *s.PortCount.Total,
		Level:           model.FirstKey(s.MapData),
		Availability:    model.Availability{Available: *s.PortCount.Available, Total: *s.PortCount.Total},
		Fee:             model.Text(s.EstimatedFee),
		Connected:       model.Text(s.IsConnected),
		StationName:     model.Text(s.StationName),
		Address:         model.Text(s.Address),
		DeviceID:        model.Text(s.DeviceID),
		PowerShedStatus: model.Text(s.PowerShedStatus),
		StationStatus:   model.Text(s.StationStatus),
		PortTypeCount:   model.Text(s.PortTypeCount),
		PortTypeInfo:    portTypeInfo,
	}, true
}
