package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ieraasyl/SatelliteFinder/internal/models"
	"github.com/ieraasyl/SatelliteFinder/pkg/config"
	"github.com/ieraasyl/SatelliteFinder/pkg/utils"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const opSearch = "search"

// GeometrySource records where the geometry of a payload came from.
type GeometrySource int

const (
	// GeometryDefault is the configured country polygon (aoi_mode "country").
	GeometryDefault GeometrySource = iota
	// GeometryCustom is the client-supplied geometry, used verbatim.
	GeometryCustom
	// GeometryFallback is the country polygon used because a custom
	// geometry was missing or malformed.
	GeometryFallback
)

// String implements fmt.Stringer.
func (g GeometrySource) String() string {
	switch g {
	case GeometryCustom:
		return "custom"
	case GeometryFallback:
		return "fallback"
	default:
		return "default"
	}
}

// SearchResult is a successful upstream catalog response.
type SearchResult struct {
	Body         []byte // upstream JSON, verbatim
	FeatureCount int64
}

// CatalogService builds upstream search payloads and performs the search call.
type CatalogService struct {
	client    *http.Client
	searchURL string
	sensor    string
	timeout   time.Duration
	maxBytes  int64
}

// NewCatalogService creates a catalog service using client for upstream calls.
func NewCatalogService(cfg *config.UpstreamConfig, client *http.Client) *CatalogService {
	return &CatalogService{
		client:    client,
		searchURL: cfg.SearchURL,
		sensor:    cfg.SensorName,
		timeout:   cfg.SearchTimeout,
		maxBytes:  cfg.MaxSearchBytes,
	}
}

// ResolveGeometry picks the geometry to send upstream. A custom geometry is
// trusted only if it is a JSON object with both "type" and "coordinates";
// anything else falls back to the default polygon. The result is never null.
func ResolveGeometry(mode string, custom json.RawMessage) (json.RawMessage, GeometrySource) {
	if mode != models.AOIModeCustom {
		return models.DefaultGeometry(), GeometryDefault
	}
	if !isGeometryObject(custom) {
		return models.DefaultGeometry(), GeometryFallback
	}
	return custom, GeometryCustom
}

func isGeometryObject(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return false
	}
	_, hasType := fields["type"]
	_, hasCoordinates := fields["coordinates"]
	return hasType && hasCoordinates
}

// BuildPayload turns a validated search request into the upstream payload.
// It is a pure function of the request and the configured sensor.
func (s *CatalogService) BuildPayload(req *models.SearchRequest) (*models.SearchPayload, GeometrySource) {
	geometry, source := ResolveGeometry(req.AOIMode, req.AOIGeoJSON)

	payload := &models.SearchPayload{
		Type:     "Feature",
		Geometry: geometry,
		Properties: models.SearchProperties{
			Fields: models.SearchFields{Geometry: true},
			Filters: models.SearchFilters{
				DateFilter: models.DateFilter{
					StartDate: req.StartDate,
					EndDate:   req.EndDate,
				},
				SensorFilter: models.SensorFilter{SensorName: s.sensor},
			},
		},
	}

	return payload, source
}

// Search posts payload to the catalog with basic authentication.
//
// It makes exactly one attempt bounded by the search timeout. Every failure
// is returned as a *GatewayError. On success the body is checked to be JSON
// and returned unmodified.
func (s *CatalogService) Search(ctx context.Context, creds models.Credentials, payload *models.SearchPayload) (*SearchResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newGatewayError(KindInternal, opSearch, "encode payload", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, newGatewayError(KindInternal, opSearch, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(creds.Identity, creds.Secret)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(opSearch, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		excerpt := readExcerpt(resp.Body)
		log.Warn().
			Str("request_id", utils.GetRequestID(ctx)).
			Str("username", creds.Identity).
			Int("upstream_status", resp.StatusCode).
			Str("upstream_body", excerpt).
			Dur("duration", time.Since(start)).
			Msg("Upstream search returned an error status")
		return nil, classifyStatus(opSearch, resp.StatusCode, excerpt)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, classifyTransportError(opSearch, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, newGatewayError(KindInternal, opSearch,
			fmt.Sprintf("upstream response exceeds %d bytes", s.maxBytes), nil)
	}
	if !gjson.ValidBytes(data) {
		return nil, newGatewayError(KindInternal, opSearch, "upstream response is not valid JSON", nil)
	}

	return &SearchResult{
		Body:         data,
		FeatureCount: gjson.GetBytes(data, "features.#").Int(),
	}, nil
}
