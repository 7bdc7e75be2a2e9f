package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/demographics-cli/internal/censuserr"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/store"
)

type stubFetcher struct {
	err    error
	calls  atomic.Int32
	radius atomic.Value
}

func (f *stubFetcher) GetDemographics(_ context.Context, lat, lon, radius float64) (*model.EnrichmentResult, error) {
	f.calls.Add(1)
	f.radius.Store(radius)
	if f.err != nil {
		return nil, f.err
	}
	return &model.EnrichmentResult{
		Location: model.Location{
			GeoIdentifier: model.GeoIdentifier{StateFIPS: "06", CountyFIPS: "037", TractCode: "207400", BlockGroupCode: "1"},
			Latitude:      lat,
			Longitude:     lon,
			RadiusMiles:   radius,
		},
		Housing:  model.HousingSection{OccupiedUnits: 1200, RenterOccupied: 505, RenterPercentage: 42.1},
		Metadata: model.Metadata{DataYear: "2022", Dataset: model.DatasetName},
	}, nil
}

type failingSink struct {
	store.ResultSink
}

func (failingSink) UpsertEnrichment(context.Context, model.PropertyKey, float64, float64, float64, *model.EnrichmentResult) error {
	return errors.New("disk full")
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var prop = model.Property{PropertyID: "p1", RegionCode: "CA", Latitude: 34.05, Longitude: -118.25}

func TestEnrichOne_PersistsResult(t *testing.T) {
	st := newTestStore(t)
	f := &stubFetcher{}
	e := New(f, st)

	res, err := e.EnrichOne(context.Background(), prop, 0)
	require.NoError(t, err)
	assert.Equal(t, "207400", res.Location.TractCode)
	assert.Equal(t, DefaultRadiusMiles, f.radius.Load())

	stored, err := st.GetEnrichment(context.Background(), prop.Key())
	require.NoError(t, err)
	assert.InDelta(t, 42.1, stored.Result.Housing.RenterPercentage, 1e-9)
	assert.InDelta(t, DefaultRadiusMiles, stored.Result.Location.RadiusMiles, 1e-9)
}

func TestEnrichOne_ExplicitRadius(t *testing.T) {
	f := &stubFetcher{}
	e := New(f, newTestStore(t), WithRadius(5))
	assert.InDelta(t, 5.0, e.Radius(), 1e-9)

	_, err := e.EnrichOne(context.Background(), prop, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f.radius.Load())
}

func TestEnrichOne_FetchErrorUnchanged(t *testing.T) {
	upstream := censuserr.UpstreamUnavailable("acs", 503, errors.New("service unavailable"))
	st := newTestStore(t)
	e := New(&stubFetcher{err: upstream}, st)

	_, err := e.EnrichOne(context.Background(), prop, 3)
	assert.Same(t, upstream, err)

	_, err = st.GetEnrichment(context.Background(), prop.Key())
	assert.True(t, errors.Is(err, store.ErrNotFound), "failed fetch writes nothing")
}

func TestEnrichOne_SinkFailureIsPersistence(t *testing.T) {
	e := New(&stubFetcher{}, failingSink{})

	_, err := e.EnrichOne(context.Background(), prop, 3)
	require.Error(t, err)
	var pe *censuserr.PersistenceError
	assert.True(t, errors.As(err, &pe))
	assert.True(t, censuserr.IsRetryable(err))
	assert.Equal(t, model.ErrorKindPersistence, censuserr.Kind(err))
}

func TestEnrichNew_SkipsExisting(t *testing.T) {
	st := newTestStore(t)
	f := &stubFetcher{}
	e := New(f, st)
	ctx := context.Background()

	_, err := e.EnrichNew(ctx, prop, 3)
	require.NoError(t, err)

	_, err = e.EnrichNew(ctx, prop, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrAlreadyExists))
	assert.Equal(t, int32(1), f.calls.Load(), "existing row must not trigger an upstream fetch")
}

func TestPing(t *testing.T) {
	e := New(&stubFetcher{}, newTestStore(t))
	assert.NoError(t, e.Ping(context.Background()))
}

