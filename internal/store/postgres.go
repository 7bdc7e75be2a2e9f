package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/db"
	"github.com/sells-group/demographics-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS property_listings (
	property_id TEXT NOT NULL,
	region_code TEXT NOT NULL,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (property_id, region_code)
);

CREATE INDEX IF NOT EXISTS idx_property_listings_region ON property_listings(region_code);

CREATE TABLE IF NOT EXISTS census_demographics (
	property_id             TEXT NOT NULL,
	region_code             TEXT NOT NULL,
	latitude                DOUBLE PRECISION NOT NULL,
	longitude               DOUBLE PRECISION NOT NULL,
	radius_miles            DOUBLE PRECISION NOT NULL,
	state_fips              TEXT NOT NULL,
	county_fips             TEXT NOT NULL,
	tract_code              TEXT NOT NULL,
	block_group_code        TEXT,
	total_population        INTEGER NOT NULL DEFAULT 0,
	median_household_income INTEGER NOT NULL DEFAULT 0,
	renter_percentage       DOUBLE PRECISION NOT NULL DEFAULT 0,
	median_age              DOUBLE PRECISION NOT NULL DEFAULT 0,
	poverty_rate            DOUBLE PRECISION NOT NULL DEFAULT 0,
	data_year               TEXT NOT NULL,
	result                  JSONB NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (property_id, region_code)
);

CREATE INDEX IF NOT EXISTS idx_census_demographics_region ON census_demographics(region_code);
CREATE INDEX IF NOT EXISTS idx_census_demographics_tract ON census_demographics(state_fips, county_fips, tract_code);
`

var enrichmentUpsert = db.UpsertConfig{
	Table:        "census_demographics",
	Columns:      enrichmentColumns,
	ConflictKeys: []string{"property_id", "region_code"},
}

var propertyUpsert = db.UpsertConfig{
	Table:        "property_listings",
	Columns:      []string{"property_id", "region_code", "latitude", "longitude"},
	ConflictKeys: []string{"property_id", "region_code"},
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error) {
	query := `SELECT property_id, region_code, latitude, longitude FROM property_listings WHERE latitude IS NOT NULL AND longitude IS NOT NULL`
	args := []any{}
	argIdx := 1

	if filter.RegionCode != "" {
		query += fmt.Sprintf(` AND region_code = $%d`, argIdx)
		args = append(args, filter.RegionCode)
		argIdx++
	}
	query += ` ORDER BY region_code, property_id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list properties")
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		var p model.Property
		if err := rows.Scan(&p.PropertyID, &p.RegionCode, &p.Latitude, &p.Longitude); err != nil {
			return nil, eris.Wrap(err, "postgres: scan property")
		}
		props = append(props, p)
	}
	return props, eris.Wrap(rows.Err(), "postgres: iterate properties")
}

func (s *PostgresStore) GetProperty(ctx context.Context, key model.PropertyKey) (*model.Property, error) {
	var p model.Property
	var lat, lon *float64
	err := s.pool.QueryRow(ctx,
		`SELECT property_id, region_code, latitude, longitude FROM property_listings WHERE property_id = $1 AND region_code = $2`,
		key.PropertyID, key.RegionCode,
	).Scan(&p.PropertyID, &p.RegionCode, &lat, &lon)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get property %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get property %s", key)
	}
	if lat == nil || lon == nil {
		return nil, eris.Wrapf(ErrNotFound, "postgres: property %s has no coordinates", key)
	}
	p.Latitude, p.Longitude = *lat, *lon
	return &p, nil
}

func (s *PostgresStore) ImportProperties(ctx context.Context, props []model.Property) (int64, error) {
	rows := make([][]any, len(props))
	for i, p := range props {
		rows[i] = []any{p.PropertyID, p.RegionCode, p.Latitude, p.Longitude}
	}
	n, err := db.BulkUpsert(ctx, s.pool, propertyUpsert, rows)
	return n, eris.Wrap(err, "postgres: import properties")
}

func (s *PostgresStore) UpsertEnrichment(ctx context.Context, key model.PropertyKey, lat, lon, radiusMiles float64, res *model.EnrichmentResult) error {
	values, err := enrichmentValues(key, lat, lon, radiusMiles, res, s.now().UTC())
	if err != nil {
		return err
	}
	if _, err := db.UpsertRow(ctx, s.pool, enrichmentUpsert, values); err != nil {
		return eris.Wrapf(err, "postgres: upsert enrichment %s", key)
	}
	return nil
}

func (s *PostgresStore) ListEnrichedKeys(ctx context.Context) ([]model.PropertyKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT property_id, region_code FROM census_demographics`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list enriched keys")
	}
	defer rows.Close()

	var keys []model.PropertyKey
	for rows.Next() {
		var k model.PropertyKey
		if err := rows.Scan(&k.PropertyID, &k.RegionCode); err != nil {
			return nil, eris.Wrap(err, "postgres: scan enriched key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "postgres: iterate enriched keys")
}

func (s *PostgresStore) GetEnrichment(ctx context.Context, key model.PropertyKey) (*model.StoredEnrichment, error) {
	var data []byte
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT result, updated_at FROM census_demographics WHERE property_id = $1 AND region_code = $2`,
		key.PropertyID, key.RegionCode,
	).Scan(&data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get enrichment %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get enrichment %s", key)
	}
	return decodeEnrichment(key, data, updatedAt)
}

func (s *PostgresStore) ListEnrichments(ctx context.Context, filter PropertyFilter) ([]model.StoredEnrichment, error) {
	query := `SELECT property_id, region_code, result, updated_at FROM census_demographics WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RegionCode != "" {
		query += fmt.Sprintf(` AND region_code = $%d`, argIdx)
		args = append(args, filter.RegionCode)
		argIdx++
	}
	query += ` ORDER BY region_code, property_id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list enrichments")
	}
	defer rows.Close()

	var out []model.StoredEnrichment
	for rows.Next() {
		var key model.PropertyKey
		var data []byte
		var updatedAt time.Time
		if err := rows.Scan(&key.PropertyID, &key.RegionCode, &data, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan enrichment")
		}
		se, err := decodeEnrichment(key, data, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *se)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate enrichments")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM property_listings WHERE latitude IS NOT NULL AND longitude IS NOT NULL`,
	).Scan(&st.TotalProperties)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count properties")
	}

	a := &st.Averages
	err = s.pool.QueryRow(ctx, `SELECT COUNT(*),
		COALESCE(AVG(total_population), 0)::float8,
		COALESCE(AVG(median_household_income), 0)::float8,
		COALESCE(AVG(renter_percentage), 0)::float8,
		COALESCE(AVG(median_age), 0)::float8,
		COALESCE(AVG(poverty_rate), 0)::float8
		FROM census_demographics`,
	).Scan(&st.TotalEnriched, &a.Population, &a.MedianHouseholdIncome, &a.RenterPercentage, &a.MedianAge, &a.PovertyRate)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enrichment averages")
	}

	rows, err := s.pool.Query(ctx, `SELECT p.region_code, COUNT(*), COUNT(d.property_id)
		FROM property_listings p
		LEFT JOIN census_demographics d ON d.property_id = p.property_id AND d.region_code = p.region_code
		WHERE p.latitude IS NOT NULL AND p.longitude IS NOT NULL
		GROUP BY p.region_code ORDER BY p.region_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: region stats")
	}
	defer rows.Close()

	for rows.Next() {
		var r RegionStats
		if err := rows.Scan(&r.RegionCode, &r.Properties, &r.Enriched); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region stats")
		}
		st.Regions = append(st.Regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate region stats")
	}

	st.finish()
	return st, nil
}
