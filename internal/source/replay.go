package source

import (
	"context"
	"os"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
)

const (
	rtreeDims        = 2
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
	pointTolerance   = 1e-9
)

// Fixture is one station served by a Replay source.
type Fixture struct {
	Lat       float64 `yaml:"lat"`
	Lon       float64 `yaml:"lon"`
	Available int     `yaml:"available"`
	Total     int     `yaml:"total"`
	Level     string  `yaml:"level"`
	Name      string  `yaml:"name"`
	Address   string  `yaml:"address"`
	DeviceID  string  `yaml:"device_id"`
	Status    string  `yaml:"status"`
}

// Record converts the fixture into the record the engine should extract.
func (f Fixture) Record() model.PointRecord {
	opt := func(s string) string {
		if s == "" {
			return model.NotSpecified
		}
		return s
	}
	return model.PointRecord{
		Lat:             f.Lat,
		Lon:             f.Lon,
		TotalPorts:      f.Total,
		Level:           opt(f.Level),
		Availability:    model.Availability{Available: f.Available, Total: f.Total},
		Fee:             model.NotSpecified,
		Connected:       model.NotSpecified,
		StationName:     opt(f.Name),
		Address:         opt(f.Address),
		DeviceID:        opt(f.DeviceID),
		PowerShedStatus: model.NotSpecified,
		StationStatus:   opt(f.Status),
		PortTypeCount:   model.NotSpecified,
		PortTypeInfo:    model.NotSpecified,
	}
}

// LoadFixtures reads a YAML (or JSON) list of fixtures.
func LoadFixtures(path string) ([]Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read fixtures %s", path)
	}
	var out []Fixture
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "source: parse fixtures %s", path)
	}
	return out, nil
}

type indexed struct {
	seq  int
	fix  Fixture
	rect *rtreego.Rect
}

func (i *indexed) Bounds() *rtreego.Rect { return i.rect }

// Replay answers region queries from an in-memory R-tree of fixtures and
// truncates each page to PageSize, the way the live endpoint does. Pages are
// ordered by insertion, so truncation is deterministic.
type Replay struct {
	tree     *rtreego.Rtree
	pageSize int
	count    int
}

// NewReplay indexes fixtures. pageSize <= 0 means unlimited.
func NewReplay(fixtures []Fixture, pageSize int) *Replay {
	tree := rtreego.NewTree(rtreeDims, rtreeMinChildren, rtreeMaxChildren)
	for i, f := range fixtures {
		pt := rtreego.Point{f.Lat, f.Lon}
		tree.Insert(&indexed{seq: i, fix: f, rect: pt.ToRect(pointTolerance)})
	}
	return &Replay{tree: tree, pageSize: pageSize, count: len(fixtures)}
}

// Len returns the number of indexed fixtures.
func (p *Replay) Len() int { return p.count }

// Fetch implements RegionQuery. Bounds are inclusive.
func (p *Replay) Fetch(ctx context.Context, r geo.Rect) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "source: replay")
	}
	if !r.Valid() {
		return model.NewResponse(nil), nil
	}

	bounds, err := rtreego.NewRect(rtreego.Point{r.SWLat, r.SWLon}, []float64{r.LatSpan(), r.LonSpan()})
	if err != nil {
		return nil, eris.Wrapf(err, "source: replay bounds %s", r)
	}

	var hits []*indexed
	for _, s := range p.tree.SearchIntersect(bounds) {
		it, ok := s.(*indexed)
		if ok && r.Contains(it.fix.Lat, it.fix.Lon) {
			hits = append(hits, it)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	if p.pageSize > 0 && len(hits) > p.pageSize {
		hits = hits[:p.pageSize]
	}

	summaries := make([]model.StationSummary, len(hits))
	for i, it := range hits {
		summaries[i] = model.SummaryOf(it.fix.Record())
	}
	return model.NewResponse(summaries), nil
}
