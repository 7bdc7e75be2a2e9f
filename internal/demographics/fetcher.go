// Package demographics combines geography resolution, ACS level fetches and
// caching into a single enrichment result, and scores storage demand.
package demographics

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/cache"
	"github.com/sells-group/demographics-cli/internal/censuserr"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/pkg/geocode"
)

// LevelFetcher retrieves raw statistics for one geography level.
type LevelFetcher interface {
	FetchTract(ctx context.Context, geo model.GeoIdentifier) (*model.TractData, error)
	FetchBlockGroup(ctx context.Context, geo model.GeoIdentifier) (*model.BlockGroupData, error)
	FetchCounty(ctx context.Context, geo model.GeoIdentifier) (*model.CountyData, error)
	DatasetYear() string
}

// Fetcher produces EnrichmentResults for coordinates. Safe for concurrent
// use.
type Fetcher struct {
	resolver geocode.Resolver
	levels   LevelFetcher
	results  *cache.TTL[cache.CoordKey, *model.EnrichmentResult]
	counties cache.CountyStore
	now      func() time.Time

	dataCalls atomic.Int64
	geoCalls  atomic.Int64
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithResultCache replaces the coordinate-keyed result cache.
func WithResultCache(c *cache.TTL[cache.CoordKey, *model.EnrichmentResult]) FetcherOption {
	return func(f *Fetcher) { f.results = c }
}

// WithCountyStore replaces the county cache.
func WithCountyStore(s cache.CountyStore) FetcherOption {
	return func(f *Fetcher) { f.counties = s }
}

// WithClock sets the clock used for fetch timestamps.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a Fetcher with 24h in-memory caches unless overridden.
func NewFetcher(resolver geocode.Resolver, levels LevelFetcher, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		resolver: resolver,
		levels:   levels,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.results == nil {
		f.results = cache.NewTTL[cache.CoordKey, *model.EnrichmentResult]()
	}
	if f.counties == nil {
		f.counties = cache.NewMemory()
	}
	return f
}

// CallsMade returns the number of Census Data API calls issued so far. This
// is the quota-bound service.
func (f *Fetcher) CallsMade() int64 { return f.dataCalls.Load() }

// GeocoderCalls returns the number of geocoder calls issued so far.
func (f *Fetcher) GeocoderCalls() int64 { return f.geoCalls.Load() }

// GetDemographics returns the enrichment for a coordinate, serving from
// cache when fresh. Geocoding and tract errors propagate unchanged; a block
// group with no published data yields an all-null block-group section.
func (f *Fetcher) GetDemographics(ctx context.Context, lat, lon, radiusMiles float64) (*model.EnrichmentResult, error) {
	key := cache.CoordKey{Lat: lat, Lon: lon, RadiusMiles: radiusMiles}
	if res, ok := f.results.Get(key); ok {
		return res.Clone(), nil
	}

	f.geoCalls.Add(1)
	geo, err := f.resolver.Resolve(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	f.dataCalls.Add(1)
	tract, err := f.levels.FetchTract(ctx, *geo)
	if err != nil {
		return nil, err
	}

	f.dataCalls.Add(1)
	blockGroup, err := f.levels.FetchBlockGroup(ctx, *geo)
	if err != nil {
		if !censuserr.IsGeographyNotFound(err) {
			return nil, err
		}
		zap.L().Debug("demographics: block group has no data",
			zap.String("state", geo.StateFIPS),
			zap.String("county", geo.CountyFIPS),
			zap.String("tract", geo.TractCode),
			zap.String("block_group", geo.BlockGroupCode),
		)
		blockGroup = nil
	}

	county, err := f.county(ctx, *geo)
	if err != nil {
		return nil, err
	}

	res := Calculate(Input{
		Geo:         *geo,
		Latitude:    lat,
		Longitude:   lon,
		RadiusMiles: radiusMiles,
		Tract:       tract,
		BlockGroup:  blockGroup,
		County:      county,
		DataYear:    f.levels.DatasetYear(),
		FetchedAt:   f.now().UTC(),
	})

	f.results.Put(key, res)
	return res.Clone(), nil
}

// county serves county statistics from the county cache, fetching on miss.
// Cache backend errors degrade to a fetch.
func (f *Fetcher) county(ctx context.Context, geo model.GeoIdentifier) (*model.CountyData, error) {
	key := cache.CountyKey{StateFIPS: geo.StateFIPS, CountyFIPS: geo.CountyFIPS}

	data, ok, err := f.counties.Get(ctx, key)
	if err != nil {
		zap.L().Warn("demographics: county cache read failed", zap.String("county", key.String()), zap.Error(err))
	}
	if ok {
		return data, nil
	}

	f.dataCalls.Add(1)
	data, err = f.levels.FetchCounty(ctx, geo)
	if err != nil {
		return nil, err
	}
	if err := f.counties.Put(ctx, key, data); err != nil {
		zap.L().Warn("demographics: county cache write failed", zap.String("county", key.String()), zap.Error(err))
	}
	return data, nil
}

// ResultCacheStats reports coordinate cache counters.
func (f *Fetcher) ResultCacheStats() cache.Stats { return f.results.Stats() }
