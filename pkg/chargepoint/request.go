package chargepoint

import "github.com/sells-group/geocover/internal/geo"

// mapRequest is the query document the map endpoint expects in the URL.
type mapRequest struct {
	StationList stationListQuery `json:"station_list"`
	UserID      int              `json:"user_id"`
}

type stationListQuery struct {
	NELat             float64      `json:"ne_lat"`
	NELon             float64      `json:"ne_lon"`
	SWLat             float64      `json:"sw_lat"`
	SWLon             float64      `json:"sw_lon"`
	PageSize          int          `json:"page_size"`
	PageOffset        string       `json:"page_offset"`
	SortBy            string       `json:"sort_by"`
	ScreenWidth       int          `json:"screen_width"`
	ScreenHeight      int          `json:"screen_height"`
	Filter            filter       `json:"filter"`
	UserLat           float64      `json:"user_lat"`
	UserLon           float64      `json:"user_lon"`
	IncludeMapBound   bool         `json:"include_map_bound"`
	EstimatedFeeInput estimatedFee `json:"estimated_fee_input"`
}

// filter disables every connector and network filter so the endpoint
// returns all stations.
type filter struct {
	ConnectorL1         bool `json:"connector_l1"`
	ConnectorL2         bool `json:"connector_l2"`
	IsBmwDcProgram      bool `json:"is_bmw_dc_program"`
	IsNctcProgram       bool `json:"is_nctc_program"`
	ConnectorChademo    bool `json:"connector_chademo"`
	ConnectorCombo      bool `json:"connector_combo"`
	ConnectorTesla      bool `json:"connector_tesla"`
	PriceFree           bool `json:"price_free"`
	StatusAvailable     bool `json:"status_available"`
	NetworkChargepoint  bool `json:"network_chargepoint"`
	NetworkBlink        bool `json:"network_blink"`
	NetworkSemacharge   bool `json:"network_semacharge"`
	NetworkEvgo         bool `json:"network_evgo"`
	ConnectorL2Nema1450 bool `json:"connector_l2_nema_1450"`
	ConnectorL2Tesla    bool `json:"connector_l2_tesla"`
}

type estimatedFee struct {
	ArrivalTime string `json:"arrival_time"`
	BatterySize int    `json:"battery_size"`
}

func (c *Client) newRequest(r geo.Rect) mapRequest {
	return mapRequest{
		StationList: stationListQuery{
			NELat:           r.NELat,
			NELon:           r.NELon,
			SWLat:           r.SWLat,
			SWLon:           r.SWLon,
			PageSize:        c.pageSize,
			SortBy:          "distance",
			ScreenWidth:     800,
			ScreenHeight:    600,
			UserLat:         c.userLat,
			UserLon:         c.userLon,
			IncludeMapBound: true,
			EstimatedFeeInput: estimatedFee{
				ArrivalTime: "10:00",
				BatterySize: 30,
			},
		},
	}
}
