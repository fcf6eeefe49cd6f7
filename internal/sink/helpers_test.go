package sink

import (
	"time"

	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
)

func testRun() Run {
	return Run{
		ID:        "run-1",
		StartedAt: time.Date(2024, 3, 1, 14, 5, 9, 0, time.Local),
		BBox:      geo.Rect{NELat: 49.314549, NELon: -123.027079, SWLat: 49.185826, SWLon: -123.310445},
	}
}

func testPoints() []model.PointRecord {
	base := func(lat, lon float64, avail, total int) model.PointRecord {
		return model.PointRecord{
			Lat: lat, Lon: lon, TotalPorts: total, Level: "level2",
			Availability:    model.Availability{Available: avail, Total: total},
			Fee:             model.NotSpecified,
			Connected:       "true",
			StationName:     `["BC HYDRO","LOT A"]`,
			Address:         model.NotSpecified,
			DeviceID:        "12345",
			PowerShedStatus: model.NotSpecified,
			StationStatus:   "available",
			PortTypeCount:   `{"level2":2}`,
			PortTypeInfo:    model.NotSpecified,
		}
	}
	return []model.PointRecord{
		base(49.2001, -123.2001, 0, 2),
		base(49.2502, -123.1, 1, 2),
		base(49.3003, -123.05, 4, 4),
	}
}
