// Package enrich is the single-property enrichment entry point: fetch the
// demographics for a property's coordinate and durably store them.
package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/censuserr"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/store"
)

// DefaultRadiusMiles is the catchment radius used when none is given.
const DefaultRadiusMiles = 3.0

// DemographicsFetcher produces enrichment results for a coordinate.
type DemographicsFetcher interface {
	GetDemographics(ctx context.Context, lat, lon, radiusMiles float64) (*model.EnrichmentResult, error)
}

// Enricher fetches and persists enrichments.
type Enricher struct {
	fetcher DemographicsFetcher
	sink    store.ResultSink
	radius  float64
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithRadius sets the default catchment radius.
func WithRadius(miles float64) Option {
	return func(e *Enricher) {
		if miles > 0 {
			e.radius = miles
		}
	}
}

// New creates an Enricher.
func New(fetcher DemographicsFetcher, sink store.ResultSink, opts ...Option) *Enricher {
	e := &Enricher{fetcher: fetcher, sink: sink, radius: DefaultRadiusMiles}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Radius returns the default catchment radius in miles.
func (e *Enricher) Radius() float64 { return e.radius }

// EnrichOne fetches the demographics for p and upserts them. A radius <= 0
// uses the default. Fetch errors are returned unchanged; sink failures are
// wrapped as persistence failures.
func (e *Enricher) EnrichOne(ctx context.Context, p model.Property, radiusMiles float64) (*model.EnrichmentResult, error) {
	if radiusMiles <= 0 {
		radiusMiles = e.radius
	}

	res, err := e.fetcher.GetDemographics(ctx, p.Latitude, p.Longitude, radiusMiles)
	if err != nil {
		return nil, err
	}

	if err := e.sink.UpsertEnrichment(ctx, p.Key(), p.Latitude, p.Longitude, radiusMiles, res); err != nil {
		return nil, censuserr.PersistenceFailure(eris.Wrapf(err, "enrich: store %s", p.Key()))
	}

	zap.L().Debug("enrich: property enriched",
		zap.String("property_id", p.PropertyID),
		zap.String("region_code", p.RegionCode),
		zap.String("tract", res.Location.TractCode),
	)
	return res, nil
}

// EnrichNew is EnrichOne for properties expected to have no enrichment yet.
// It returns store.ErrAlreadyExists without calling upstream when a row is
// already present, so concurrent runs do not spend quota twice.
func (e *Enricher) EnrichNew(ctx context.Context, p model.Property, radiusMiles float64) (*model.EnrichmentResult, error) {
	_, err := e.sink.GetEnrichment(ctx, p.Key())
	switch {
	case err == nil:
		return nil, eris.Wrapf(store.ErrAlreadyExists, "enrich: %s", p.Key())
	case !errors.Is(err, store.ErrNotFound):
		return nil, censuserr.PersistenceFailure(eris.Wrapf(err, "enrich: check existing %s", p.Key()))
	}
	return e.EnrichOne(ctx, p, radiusMiles)
}

// Ping checks that the result sink is reachable.
func (e *Enricher) Ping(ctx context.Context) error {
	return eris.Wrap(e.sink.Ping(ctx), "enrich: ping sink")
}
