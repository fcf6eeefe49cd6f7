package model

import (
	"bytes"
	"encoding/json"
	"math"
)

// Response is the body returned by the station map API for one bounding box.
// Only station_list is consumed; every nested member may be absent.
type Response struct {
	StationList *StationList `json:"station_list"`
}

// StationList holds the station summaries of one page. Summaries is nil when
// the member is missing, and empty (non-nil) when the page has no stations.
type StationList struct {
	Summaries    []StationSummary `json:"summaries"`
	PortTypeInfo json.RawMessage  `json:"port_type_info,omitempty"`
}

// StationSummary is one station as returned by the API. Coordinates and port
// counts are required to build a PointRecord; the rest is free-form.
type StationSummary struct {
	Lat             *float64        `json:"lat"`
	Lon             *float64        `json:"lon"`
	PortCount       *PortCount      `json:"port_count"`
	MapData         json.RawMessage `json:"map_data,omitempty"`
	EstimatedFee    json.RawMessage `json:"estimated_fee,omitempty"`
	IsConnected     json.RawMessage `json:"is_connected,omitempty"`
	StationName     json.RawMessage `json:"station_name,omitempty"`
	Address         json.RawMessage `json:"address,omitempty"`
	DeviceID        json.RawMessage `json:"device_id,omitempty"`
	PowerShedStatus json.RawMessage `json:"station_power_shed_status,omitempty"`
	StationStatus   json.RawMessage `json:"station_status,omitempty"`
	PortTypeCount   json.RawMessage `json:"port_type_count,omitempty"`
}

// PortCount is the available/total port pair of a station.
type PortCount struct {
	Available *int `json:"available"`
	Total     *int `json:"total"`
}

// UnmarshalJSON decodes a summary leniently. A required member of the wrong
// type, or a summary that is not an object, leaves the member nil so the
// summary is skipped while the rest of the page still decodes and counts.
func (s *StationSummary) UnmarshalJSON(data []byte) error {
	type optional StationSummary
	var wire struct {
		optional
		Lat       json.RawMessage `json:"lat"`
		Lon       json.RawMessage `json:"lon"`
		PortCount json.RawMessage `json:"port_count"`
	}
	*s = StationSummary{}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil
	}

	*s = StationSummary(wire.optional)
	s.Lat = number(wire.Lat)
	s.Lon = number(wire.Lon)
	s.PortCount = nil

	var pc struct {
		Available json.RawMessage `json:"available"`
		Total     json.RawMessage `json:"total"`
	}
	if len(wire.PortCount) > 0 && json.Unmarshal(wire.PortCount, &pc) == nil {
		s.PortCount = &PortCount{Available: integer(pc.Available), Total: integer(pc.Total)}
	}
	return nil
}

// number decodes a JSON number, or returns nil for anything else.
func number(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return f
}

// integer decodes a JSON number with no fractional part, so 2.0 reads as 2.
func integer(raw json.RawMessage) *int {
	f := number(raw)
	if f == nil || *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	n := int(*f)
	return &n
}

// Text renders an optional raw JSON member as a string. Missing and null
// members become NotSpecified; JSON strings are unquoted; any other value is
// rendered as compact JSON.
func Text(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NotSpecified
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

// FirstKey returns the first member name of a JSON object in document order,
// or NotSpecified when raw is not a non-empty object.
func FirstKey(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return NotSpecified
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return NotSpecified
	}
	tok, err = dec.Token()
	if err != nil {
		return NotSpecified
	}
	key, ok := tok.(string)
	if !ok {
		return NotSpecified
	}
	return key
}

// SummaryOf converts a record back into its wire form. Attributes holding
// NotSpecified are omitted. It is used by the replay source.
func SummaryOf(p PointRecord) StationSummary {
	lat, lon := p.Lat, p.Lon
	avail, total := p.Availability.Available, p.Availability.Total
	s := StationSummary{
		Lat:             &lat,
		Lon:             &lon,
		PortCount:       &PortCount{Available: &avail, Total: &total},
		EstimatedFee:    rawText(p.Fee),
		IsConnected:     rawText(p.Connected),
		StationName:     rawText(p.StationName),
		Address:         rawText(p.Address),
		DeviceID:        rawText(p.DeviceID),
		PowerShedStatus: rawText(p.PowerShedStatus),
		StationStatus:   rawText(p.StationStatus),
		PortTypeCount:   rawText(p.PortTypeCount),
	}
	if p.Level != "" && p.Level != NotSpecified {
		s.MapData, _ = json.Marshal(map[string]struct{}{p.Level: {}})
	}
	return s
}

// NewResponse wraps summaries into a single page.
func NewResponse(summaries []StationSummary) *Response {
	if summaries == nil {
		summaries = []StationSummary{}
	}
	return &Response{StationList: &StationList{Summaries: summaries}}
}

func rawText(s string) json.RawMessage {
	if s == "" || s == NotSpecified {
		return nil
	}
	raw, _ := json.Marshal(s)
	return raw
}
