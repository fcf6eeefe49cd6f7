package sink

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geocover/internal/model"
)

// dBase limits field names to 10 characters and strings to 254 bytes.
const shpStringLen = 254

var shpFieldNames = map[string]string{
	"lat":                       "LAT",
	"lon":                       "LON",
	"port":                      "PORT",
	"level":                     "LEVEL",
	"availability":              "AVAIL",
	"fee":                       "FEE",
	"connected":                 "CONNECTED",
	"station_name":              "NAME",
	"address":                   "ADDRESS",
	"device_id":                 "DEVICE_ID",
	"station_power_shed_status": "SHED_STAT",
	"station_status":            "STATUS",
	"port_type_count":           "PORT_TYPES",
	"port_type_info":            "TYPE_INFO",
}

// ShapeFieldName returns the dBase attribute name of a record column.
func ShapeFieldName(col string) string { return shpFieldNames[col] }

// Shapefile writes each run as a point shapefile (.shp/.shx/.dbf).
type Shapefile struct {
	dir    string
	layout TableLayout
}

// NewShapefile creates a shapefile sink writing into dir.
func NewShapefile(dir string, layout TableLayout) *Shapefile {
	return &Shapefile{dir: dir, layout: layout}
}

// Name implements Sink.
func (s *Shapefile) Name() string { return "shapefile" }

// Path returns the .shp path written for run.
func (s *Shapefile) Path(run Run) string {
	return filepath.Join(s.dir, run.TableName()+".shp")
}

func shpField(col string) shp.Field {
	name := ShapeFieldName(col)
	switch col {
	case "lat", "lon":
		return shp.FloatField(name, 19, 11)
	case "port":
		return shp.NumberField(name, 10)
	default:
		return shp.StringField(name, shpStringLen)
	}
}

// Write implements Sink.
func (s *Shapefile) Write(_ context.Context, run Run, points []model.PointRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "shapefile: create dir %s", s.dir)
	}
	path := s.Path(run)
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "shapefile: create %s", path)
	}
	defer w.Close()

	cols := s.layout.Columns()
	fields := make([]shp.Field, len(cols))
	for i, c := range cols {
		fields[i] = shpField(c)
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrapf(err, "shapefile: set fields on %s", path)
	}

	for _, p := range points {
		n := w.Write(&shp.Point{X: p.Lon, Y: p.Lat})
		for i, v := range s.layout.Row(p) {
			if str, ok := v.(string); ok && len(str) > shpStringLen {
				v = str[:shpStringLen]
			}
			if err := w.WriteAttribute(int(n), i, v); err != nil {
				return eris.Wrapf(err, "shapefile: write %s attribute %s", p.Key(), cols[i])
			}
		}
	}
	return nil
}
