// Package store persists property listings and their census enrichments.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/model"
)

var (
	// ErrNotFound is returned when a property or enrichment row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrAlreadyExists is returned when an enrichment row is already present
	// for a key that was expected to be new.
	ErrAlreadyExists = eris.New("store: already exists")
)

// defaultPageSize caps list queries that do not set a limit.
const defaultPageSize = 1000

// PropertyFilter specifies criteria for listing properties or enrichments.
type PropertyFilter struct {
	RegionCode string `json:"region_code,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

func (f PropertyFilter) limit() int {
	if f.Limit <= 0 {
		return defaultPageSize
	}
	return f.Limit
}

// PropertySource yields the properties eligible for enrichment. Properties
// without coordinates are never returned.
type PropertySource interface {
	ListProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error)
	GetProperty(ctx context.Context, key model.PropertyKey) (*model.Property, error)
	Ping(ctx context.Context) error
}

// ResultSink stores one enrichment per property key.
type ResultSink interface {
	// UpsertEnrichment inserts or replaces the enrichment for key.
	UpsertEnrichment(ctx context.Context, key model.PropertyKey, lat, lon, radiusMiles float64, res *model.EnrichmentResult) error
	ListEnrichedKeys(ctx context.Context) ([]model.PropertyKey, error)
	GetEnrichment(ctx context.Context, key model.PropertyKey) (*model.StoredEnrichment, error)
	ListEnrichments(ctx context.Context, filter PropertyFilter) ([]model.StoredEnrichment, error)
	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
}

// Store is a property source and result sink backed by one database.
type Store interface {
	PropertySource
	ResultSink

	// ImportProperties upserts listings keyed by (property_id, region_code).
	ImportProperties(ctx context.Context, props []model.Property) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Stats summarizes enrichment coverage.
type Stats struct {
	TotalProperties int64         `json:"total_properties"`
	TotalEnriched   int64         `json:"total_enriched"`
	CompletionPct   float64       `json:"completion_pct"`
	Averages        Averages      `json:"averages"`
	Regions         []RegionStats `json:"regions"`
}

// Averages are means over all enriched properties.
type Averages struct {
	Population            float64 `json:"population"`
	MedianHouseholdIncome float64 `json:"median_household_income"`
	RenterPercentage      float64 `json:"renter_percentage"`
	MedianAge             float64 `json:"median_age"`
	PovertyRate           float64 `json:"poverty_rate"`
}

// RegionStats is enrichment coverage for a single region code.
type RegionStats struct {
	RegionCode    string  `json:"region_code"`
	Properties    int64   `json:"properties"`
	Enriched      int64   `json:"enriched"`
	CompletionPct float64 `json:"completion_pct"`
}

func (s *Stats) finish() {
	s.CompletionPct = model.RoundedPercent(int(s.TotalEnriched), int(s.TotalProperties))
	for i := range s.Regions {
		r := &s.Regions[i]
		r.CompletionPct = model.RoundedPercent(int(r.Enriched), int(r.Properties))
	}
}

// enrichmentColumns is the column order shared by both backends.
var enrichmentColumns = []string{
	"property_id", "region_code", "latitude", "longitude", "radius_miles",
	"state_fips", "county_fips", "tract_code", "block_group_code",
	"total_population", "median_household_income", "renter_percentage",
	"median_age", "poverty_rate", "data_year", "result", "updated_at",
}

// enrichmentValues flattens a result into enrichmentColumns order. The full
// result travels as JSON; the scalar columns serve stats and filtering.
func enrichmentValues(key model.PropertyKey, lat, lon, radius float64, res *model.EnrichmentResult, now time.Time) ([]any, error) {
	if res == nil {
		return nil, eris.New("store: nil enrichment result")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal enrichment")
	}
	return []any{
		key.PropertyID, key.RegionCode, lat, lon, radius,
		res.Location.StateFIPS, res.Location.CountyFIPS, res.Location.TractCode, res.Location.BlockGroupCode,
		res.Population.Total, res.Economic.MedianHouseholdIncome, res.Housing.RenterPercentage,
		res.Population.MedianAge, res.Economic.PovertyRate, res.Metadata.DataYear,
		data, now,
	}, nil
}

func decodeEnrichment(key model.PropertyKey, data []byte, updatedAt time.Time) (*model.StoredEnrichment, error) {
	var res model.EnrichmentResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, eris.Wrapf(err, "store: decode enrichment %s", key)
	}
	return &model.StoredEnrichment{Key: key, Result: &res, UpdatedAt: updatedAt}, nil
}
