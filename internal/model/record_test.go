package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailability_String(t *testing.T) {
	assert.Equal(t, "0:4", Availability{Available: 0, Total: 4}.String())
	assert.Equal(t, "2:2", Availability{Available: 2, Total: 2}.String())
}

func TestParseAvailability(t *testing.T) {
	a, err := ParseAvailability("3:8")
	require.NoError(t, err)
	assert.Equal(t, Availability{Available: 3, Total: 8}, a)

	_, err = ParseAvailability("38")
	assert.Error(t, err)
	_, err = ParseAvailability("a:8")
	assert.Error(t, err)
	_, err = ParseAvailability("3:b")
	assert.Error(t, err)
}

func TestPointRecord_JSONAvailabilityIsString(t *testing.T) {
	rec := PointRecord{Lat: 49.2, Lon: -123.1, TotalPorts: 4, Availability: Availability{Available: 1, Total: 4}}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"availability":"1:4"`)

	var back PointRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec.Availability, back.Availability)
}

func TestPointRecord_Values(t *testing.T) {
	rec := PointRecord{
		Lat: 49.2, Lon: -123.1, TotalPorts: 2, Level: "level2",
		Availability: Availability{Available: 0, Total: 2},
		Fee: "1.50", Connected: "true", StationName: "Main St", Address: "1 Main St",
		DeviceID: "123", PowerShedStatus: "none", StationStatus: "available",
		PortTypeCount: `{"level2":2}`, PortTypeInfo: NotSpecified,
	}

	vals := rec.Values()
	require.Len(t, vals, len(Columns))
	assert.Equal(t, 49.2, vals[0])
	assert.Equal(t, "0:2", vals[4])
	assert.Equal(t, NotSpecified, vals[13])
	assert.Len(t, CompactColumns, 5)
	assert.Equal(t, "availability", CompactColumns[4])
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "49.25,-123.1", Key{Lat: 49.25, Lon: -123.1}.String())
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"missing", "", NotSpecified},
		{"null", "null", NotSpecified},
		{"string", `"Main St"`, "Main St"},
		{"number", "12.5", "12.5"},
		{"bool", "true", "true"},
		{"object", `{ "a" : 1 }`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(json.RawMessage(tt.raw)))
		})
	}
}

func TestFirstKey(t *testing.T) {
	assert.Equal(t, "level2", FirstKey(json.RawMessage(`{"level2":{"x":1},"level1":{}}`)))
	assert.Equal(t, "zeta", FirstKey(json.RawMessage(`{"zeta":1,"alpha":2}`)), "document order, not sorted")
	assert.Equal(t, NotSpecified, FirstKey(json.RawMessage(`{}`)))
	assert.Equal(t, NotSpecified, FirstKey(json.RawMessage(`[1,2]`)))
	assert.Equal(t, NotSpecified, FirstKey(nil))
}

func TestResponse_DistinguishesMissingAndEmptySummaries(t *testing.T) {
	var missing Response
	require.NoError(t, json.Unmarshal([]byte(`{"station_list":{}}`), &missing))
	require.NotNil(t, missing.StationList)
	assert.Nil(t, missing.StationList.Summaries)

	var empty Response
	require.NoError(t, json.Unmarshal([]byte(`{"station_list":{"summaries":[]}}`), &empty))
	assert.NotNil(t, empty.StationList.Summaries)
	assert.Empty(t, empty.StationList.Summaries)
}
