// Package geo holds the rectangle model used to address query regions and the
// planner that subdivides overflowing regions.
package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference of every coordinate handled by the scraper (WGS 84).
const SRID = 4326

// Rect is a lat/lon bounding box defined by its north-east and south-west corners.
type Rect struct {
	NELat float64 `json:"ne_lat" yaml:"ne_lat" mapstructure:"ne_lat"`
	NELon float64 `json:"ne_lon" yaml:"ne_lon" mapstructure:"ne_lon"`
	SWLat float64 `json:"sw_lat" yaml:"sw_lat" mapstructure:"sw_lat"`
	SWLon float64 `json:"sw_lon" yaml:"sw_lon" mapstructure:"sw_lon"`
}

// LatSpan returns the north-south extent in degrees.
func (r Rect) LatSpan() float64 { return r.NELat - r.SWLat }

// LonSpan returns the east-west extent in degrees.
func (r Rect) LonSpan() float64 { return r.NELon - r.SWLon }

// Valid reports whether the north-east corner is strictly north and east of
// the south-west corner.
func (r Rect) Valid() bool {
	return r.NELat > r.SWLat && r.NELon > r.SWLon
}

// Area returns the planar area in square degrees. Invalid rectangles have zero area.
func (r Rect) Area() float64 {
	if !r.Valid() {
		return 0
	}
	return r.LatSpan() * r.LonSpan()
}

// Contains reports whether the point lies inside the rectangle, edges included.
func (r Rect) Contains(lat, lon float64) bool {
	return lat >= r.SWLat && lat <= r.NELat && lon >= r.SWLon && lon <= r.NELon
}

// Polygon returns the rectangle as a closed go-geom polygon (x=lon, y=lat).
func (r Rect) Polygon() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		r.SWLon, r.SWLat,
		r.NELon, r.SWLat,
		r.NELon, r.NELat,
		r.SWLon, r.NELat,
		r.SWLon, r.SWLat,
	}, []int{10}).SetSRID(SRID)
}

// String renders the rectangle in the same order ParseRect accepts.
func (r Rect) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.NELat, r.NELon, r.SWLat, r.SWLon)
}

// ParseRect parses "ne_lat,ne_lon,sw_lat,sw_lon".
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, eris.Errorf("geo: bbox %q must have 4 comma-separated values (ne_lat,ne_lon,sw_lat,sw_lon)", s)
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Rect{}, eris.Wrapf(err, "geo: parse bbox value %q", p)
		}
		vals[i] = v
	}

	r := Rect{NELat: vals[0], NELon: vals[1], SWLat: vals[2], SWLon: vals[3]}
	if !r.Valid() {
		return Rect{}, eris.Errorf("geo: bbox %s has its north-east corner south or west of its south-west corner", r)
	}
	return r, nil
}
