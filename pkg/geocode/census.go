package geocode

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/censuserr"
	"github.com/sells-group/demographics-cli/internal/model"
)

const (
	censusGeographiesURL = "https://geocoding.geo.census.gov/geocoder/geographies/coordinates"
	censusBenchmark      = "Public_AR_Current"
	censusVintage        = "Current_Current"

	// defaultBlockGroup is used when the geocoder omits the block layer.
	defaultBlockGroup = "1"
)

// censusGeographiesResponse is the JSON response from geographies/coordinates.
type censusGeographiesResponse struct {
	Result struct {
		Geographies map[string][]censusGeography `json:"geographies"`
	} `json:"result"`
}

type censusGeography struct {
	GEOID    string `json:"GEOID"`
	Name     string `json:"NAME"`
	State    string `json:"STATE"`
	County   string `json:"COUNTY"`
	Tract    string `json:"TRACT"`
	BlockGrp string `json:"BLKGRP"`
	Block    string `json:"BLOCK"`
}

const (
	layerTracts   = "Census Tracts"
	layerCounties = "Counties"
	layerBlocks   = "2020 Census Blocks"
)

// Resolve implements Resolver.
func (r *resolver) Resolve(ctx context.Context, lat, lon float64) (*model.GeoIdentifier, error) {
	if !validCoordinate(lat, lon) {
		return nil, eris.Wrapf(censuserr.ErrGeographyNotFound, "geocode: invalid coordinate %v,%v", lat, lon)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params := url.Values{
		"x":         {strconv.FormatFloat(lon, 'f', -1, 64)},
		"y":         {strconv.FormatFloat(lat, 'f', -1, 64)},
		"benchmark": {censusBenchmark},
		"vintage":   {censusVintage},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, r.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.record("error")
		return nil, censuserr.UpstreamUnavailable(ServiceName, 0, eris.Wrap(err, "geocode: census request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		r.record("error")
		if !censuserr.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, eris.Wrap(censuserr.Rejected(ServiceName, resp.StatusCode), "geocode: census")
		}
		return nil, censuserr.UpstreamUnavailable(ServiceName, resp.StatusCode,
			eris.Errorf("geocode: census returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.record("error")
		return nil, censuserr.UpstreamUnavailable(ServiceName, 0, eris.Wrap(err, "geocode: census read body"))
	}

	var parsed censusGeographiesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		r.record("error")
		return nil, censuserr.UpstreamUnavailable(ServiceName, resp.StatusCode, eris.Wrap(err, "geocode: census parse response"))
	}

	geo, err := toGeoIdentifier(parsed.Result.Geographies)
	if err != nil {
		r.record("not_found")
		return nil, eris.Wrapf(err, "geocode: no geography for %v,%v", lat, lon)
	}
	r.record("ok")
	return geo, nil
}

// toGeoIdentifier extracts the identifier from the geography layers. A
// missing tract or county layer means the point is outside any geography.
func toGeoIdentifier(layers map[string][]censusGeography) (*model.GeoIdentifier, error) {
	tracts := layers[layerTracts]
	counties := layers[layerCounties]
	if len(tracts) == 0 || len(counties) == 0 {
		return nil, censuserr.ErrGeographyNotFound
	}

	tract := tracts[0]
	county := counties[0]
	if tract.State == "" || tract.County == "" || tract.Tract == "" {
		return nil, censuserr.ErrGeographyNotFound
	}

	return &model.GeoIdentifier{
		StateFIPS:      tract.State,
		CountyFIPS:     tract.County,
		TractCode:      tract.Tract,
		BlockGroupCode: blockGroup(layers[layerBlocks]),
		CountyName:     county.Name,
		TractName:      tract.Name,
		GeoID:          tract.GEOID,
		CountyGeoID:    county.GEOID,
	}, nil
}

// blockGroup reads BLKGRP, falling back to the first digit of the block
// code and then to "1".
func blockGroup(blocks []censusGeography) string {
	if len(blocks) == 0 {
		return defaultBlockGroup
	}
	if bg := blocks[0].BlockGrp; bg != "" {
		return bg
	}
	if b := blocks[0].Block; b != "" {
		return b[:1]
	}
	return defaultBlockGroup
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
