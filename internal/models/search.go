// Package models defines the data structures exchanged between the HTTP layer,
// the services and the upstream satellite data provider.
package models

import (
	"encoding/json"
)

// AOI modes accepted in a search request.
const (
	AOIModeCountry = "country"
	AOIModeCustom  = "custom"
)

// SearchRequest is the body of an inbound search call.
// It only lives for the duration of one request; Password is never logged.
type SearchRequest struct {
	Username   string          `json:"username" validate:"required"`
	Password   string          `json:"password" validate:"required"`
	StartDate  string          `json:"startdate" validate:"required"`
	EndDate    string          `json:"enddate" validate:"required"`
	AOIMode    string          `json:"aoi_mode"`
	AOIGeoJSON json.RawMessage `json:"aoi_geojson,omitempty"`
}

// Geometry is a GeoJSON geometry object. Coordinates are kept raw so a
// client-supplied geometry is forwarded upstream unchanged.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// DefaultPolygon is the bounding box of the Netherlands, used whenever the
// client does not supply a usable custom area of interest.
var DefaultPolygon = json.RawMessage(`[[[3.364868,50.749124],[7.229919,50.749124],[7.229919,53.554663],[3.364868,53.554663],[3.364868,50.749124]]]`)

// DefaultGeometry returns the default country polygon.
func DefaultGeometry() json.RawMessage {
	geometry, _ := json.Marshal(Geometry{Type: "Polygon", Coordinates: DefaultPolygon})
	return geometry
}

// SearchPayload is the normalized body sent to the upstream catalog API.
type SearchPayload struct {
	Type       string           `json:"type"`
	Geometry   json.RawMessage  `json:"geometry"`
	Properties SearchProperties `json:"properties"`
}

// SearchProperties holds the field selection and filters of a SearchPayload.
type SearchProperties struct {
	Fields  SearchFields  `json:"fields"`
	Filters SearchFilters `json:"filters"`
}

// SearchFields selects which fields the catalog returns.
type SearchFields struct {
	Geometry bool `json:"geometry"`
}

// SearchFilters restricts the catalog search.
type SearchFilters struct {
	DateFilter   DateFilter   `json:"datefilter"`
	SensorFilter SensorFilter `json:"sensorfilter"`
}

// DateFilter is an inclusive acquisition date range, passed through as sent by the client.
type DateFilter struct {
	StartDate string `json:"startdate"`
	EndDate   string `json:"enddate"`
}

// SensorFilter restricts results to a single sensor.
type SensorFilter struct {
	SensorName string `json:"sensorname"`
}
