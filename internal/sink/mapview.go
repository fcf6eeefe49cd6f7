package sink

import (
	"context"
	"html/template"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geocover/internal/model"
)

// Default map centre (downtown Vancouver) and zoom.
const (
	DefaultCenterLat = 49.2829
	DefaultCenterLon = -123.0750
	DefaultZoom      = 11
)

// Marker is one point on the rendered map.
type Marker struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Popup string  `json:"popup"`
	Color string  `json:"color"`
}

// MarkerFor renders a record as a marker: red when no port is available,
// blue otherwise, with the availability string as popup.
func MarkerFor(p model.PointRecord) Marker {
	color := "blue"
	if p.Availability.Available == 0 {
		color = "red"
	}
	return Marker{Lat: p.Lat, Lon: p.Lon, Popup: p.Availability.String(), Color: color}
}

var mapPage = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map').setView([{{.Lat}}, {{.Lon}}], {{.Zoom}});
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
var markers = {{.Markers}};
markers.forEach(function (m) {
  L.circleMarker([m.lat, m.lon], {radius: 6, color: m.color, fillColor: m.color, fillOpacity: 0.8})
    .bindPopup(m.popup)
    .addTo(map);
});
</script>
</body>
</html>
`))

// MapView writes a self-contained Leaflet page per run into a directory.
type MapView struct {
	dir       string
	centerLat float64
	centerLon float64
	zoom      int
}

// NewMapView creates a map sink writing into dir. A zero centre uses the
// default.
func NewMapView(dir string, centerLat, centerLon float64, zoom int) *MapView {
	if centerLat == 0 && centerLon == 0 {
		centerLat, centerLon = DefaultCenterLat, DefaultCenterLon
	}
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return &MapView{dir: dir, centerLat: centerLat, centerLon: centerLon, zoom: zoom}
}

// Name implements Sink.
func (m *MapView) Name() string { return "map" }

// Path returns the file written for run.
func (m *MapView) Path(run Run) string {
	return filepath.Join(m.dir, run.TableName()+".html")
}

// Write implements Sink.
func (m *MapView) Write(_ context.Context, run Run, points []model.PointRecord) error {
	markers := make([]Marker, len(points))
	for i, p := range points {
		markers[i] = MarkerFor(p)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return eris.Wrapf(err, "map: create dir %s", m.dir)
	}
	path := m.Path(run)
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "map: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	err = mapPage.Execute(f, map[string]any{
		"Title":   "Charging stations " + run.TableName(),
		"Lat":     m.centerLat,
		"Lon":     m.centerLon,
		"Zoom":    m.zoom,
		"Markers": markers,
	})
	if err != nil {
		return eris.Wrapf(err, "map: render %s", path)
	}
	return eris.Wrapf(f.Close(), "map: close %s", path)
}
