package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// NotSpecified is recorded for every optional station attribute the API omits.
const NotSpecified = "Not Specified"

// Key identifies a point within one run. Two records with the same
// coordinates are the same point; the later one wins.
type Key struct {
	Lat float64
	Lon float64
}

// String renders the key as "lat,lon".
func (k Key) String() string {
	return strconv.FormatFloat(k.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(k.Lon, 'f', -1, 64)
}

// Availability is the available/total port pair, rendered "available:total".
type Availability struct {
	Available int
	Total     int
}

func (a Availability) String() string {
	return fmt.Sprintf("%d:%d", a.Available, a.Total)
}

// MarshalText implements encoding.TextMarshaler.
func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Availability) UnmarshalText(b []byte) error {
	parsed, err := ParseAvailability(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAvailability parses "available:total".
func ParseAvailability(s string) (Availability, error) {
	avail, total, ok := strings.Cut(s, ":")
	if !ok {
		return Availability{}, eris.Errorf("model: availability %q is not available:total", s)
	}
	a, err := strconv.Atoi(strings.TrimSpace(avail))
	if err != nil {
		return Availability{}, eris.Wrapf(err, "model: parse available ports in %q", s)
	}
	t, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil {
		return Availability{}, eris.Wrapf(err, "model: parse total ports in %q", s)
	}
	return Availability{Available: a, Total: t}, nil
}

// PointRecord is one accepted station.
type PointRecord struct {
	Lat             float64      `json:"lat"`
	Lon             float64      `json:"lon"`
	TotalPorts      int          `json:"port"`
	Level           string       `json:"level"`
	Availability    Availability `json:"availability"`
	Fee             string       `json:"fee"`
	Connected       string       `json:"connected"`
	StationName     string       `json:"station_name"`
	Address         string       `json:"address"`
	DeviceID        string       `json:"device_id"`
	PowerShedStatus string       `json:"station_power_shed_status"`
	StationStatus   string       `json:"station_status"`
	PortTypeCount   string       `json:"port_type_count"`
	PortTypeInfo    string       `json:"port_type_info"`
}

// Key returns the record identity.
func (p PointRecord) Key() Key {
	return Key{Lat: p.Lat, Lon: p.Lon}
}

// Columns is the flattened column order shared by every tabular export.
var Columns = []string{
	"lat", "lon", "port", "level", "availability",
	"fee", "connected", "station_name", "address", "device_id",
	"station_power_shed_status", "station_status", "port_type_count", "port_type_info",
}

// CompactColumns is the reduced layout holding only location, size and availability.
var CompactColumns = Columns[:5]

// Values flattens the record in Columns order.
func (p PointRecord) Values() []any {
	return []any{
		p.Lat, p.Lon, p.TotalPorts, p.Level, p.Availability.String(),
		p.Fee, p.Connected, p.StationName, p.Address, p.DeviceID,
		p.PowerShedStatus, p.StationStatus, p.PortTypeCount, p.PortTypeInfo,
	}
}
