package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/demographics-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them in effect.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS property_listings (
	property_id TEXT NOT NULL,
	region_code TEXT NOT NULL,
	latitude    REAL,
	longitude   REAL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (property_id, region_code)
);

CREATE INDEX IF NOT EXISTS idx_property_listings_region ON property_listings(region_code);

CREATE TABLE IF NOT EXISTS census_demographics (
	property_id             TEXT NOT NULL,
	region_code             TEXT NOT NULL,
	latitude                REAL NOT NULL,
	longitude               REAL NOT NULL,
	radius_miles            REAL NOT NULL,
	state_fips              TEXT NOT NULL,
	county_fips             TEXT NOT NULL,
	tract_code              TEXT NOT NULL,
	block_group_code        TEXT,
	total_population        INTEGER NOT NULL DEFAULT 0,
	median_household_income INTEGER NOT NULL DEFAULT 0,
	renter_percentage       REAL NOT NULL DEFAULT 0,
	median_age              REAL NOT NULL DEFAULT 0,
	poverty_rate            REAL NOT NULL DEFAULT 0,
	data_year               TEXT NOT NULL,
	result                  TEXT NOT NULL,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (property_id, region_code)
);

CREATE INDEX IF NOT EXISTS idx_census_demographics_region ON census_demographics(region_code);
`

// sqliteEnrichmentUpsert mirrors the Postgres ON CONFLICT upsert; created_at
// survives a re-enrichment.
var sqliteEnrichmentUpsert = func() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(enrichmentColumns)), ", ")
	var sets []string
	for _, c := range enrichmentColumns[2:] {
		sets = append(sets, c+" = excluded."+c)
	}
	return `INSERT INTO census_demographics (` + strings.Join(enrichmentColumns, ", ") + `) VALUES (` + placeholders +
		`) ON CONFLICT (property_id, region_code) DO UPDATE SET ` + strings.Join(sets, ", ")
}()

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error) {
	query := `SELECT property_id, region_code, latitude, longitude FROM property_listings WHERE latitude IS NOT NULL AND longitude IS NOT NULL`
	var args []any
	if filter.RegionCode != "" {
		query += ` AND region_code = ?`
		args = append(args, filter.RegionCode)
	}
	query += ` ORDER BY region_code, property_id LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list properties")
	}
	defer rows.Close() //nolint:errcheck

	var props []model.Property
	for rows.Next() {
		var p model.Property
		if err := rows.Scan(&p.PropertyID, &p.RegionCode, &p.Latitude, &p.Longitude); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan property")
		}
		props = append(props, p)
	}
	return props, eris.Wrap(rows.Err(), "sqlite: iterate properties")
}

func (s *SQLiteStore) GetProperty(ctx context.Context, key model.PropertyKey) (*model.Property, error) {
	var p model.Property
	var lat, lon sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT property_id, region_code, latitude, longitude FROM property_listings WHERE property_id = ? AND region_code = ?`,
		key.PropertyID, key.RegionCode,
	).Scan(&p.PropertyID, &p.RegionCode, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get property %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get property %s", key)
	}
	if !lat.Valid || !lon.Valid {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: property %s has no coordinates", key)
	}
	p.Latitude, p.Longitude = lat.Float64, lon.Float64
	return &p, nil
}

func (s *SQLiteStore) ImportProperties(ctx context.Context, props []model.Property) (int64, error) {
	if len(props) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO property_listings (property_id, region_code, latitude, longitude)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (property_id, region_code) DO UPDATE SET latitude = excluded.latitude, longitude = excluded.longitude`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, p := range props {
		if _, err := stmt.ExecContext(ctx, p.PropertyID, p.RegionCode, p.Latitude, p.Longitude); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import property %s", p.Key())
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

func (s *SQLiteStore) UpsertEnrichment(ctx context.Context, key model.PropertyKey, lat, lon, radiusMiles float64, res *model.EnrichmentResult) error {
	values, err := enrichmentValues(key, lat, lon, radiusMiles, res, s.now().UTC())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteEnrichmentUpsert, values...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert enrichment %s", key)
	}
	return nil
}

func (s *SQLiteStore) ListEnrichedKeys(ctx context.Context) ([]model.PropertyKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT property_id, region_code FROM census_demographics`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list enriched keys")
	}
	defer rows.Close() //nolint:errcheck

	var keys []model.PropertyKey
	for rows.Next() {
		var k model.PropertyKey
		if err := rows.Scan(&k.PropertyID, &k.RegionCode); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan enriched key")
		}
		keys = append(keys, k)
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: iterate enriched keys")
}

func (s *SQLiteStore) GetEnrichment(ctx context.Context, key model.PropertyKey) (*model.StoredEnrichment, error) {
	var data []byte
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT result, updated_at FROM census_demographics WHERE property_id = ? AND region_code = ?`,
		key.PropertyID, key.RegionCode,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get enrichment %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get enrichment %s", key)
	}
	return decodeEnrichment(key, data, updatedAt)
}

func (s *SQLiteStore) ListEnrichments(ctx context.Context, filter PropertyFilter) ([]model.StoredEnrichment, error) {
	query := `SELECT property_id, region_code, result, updated_at FROM census_demographics`
	var args []any
	if filter.RegionCode != "" {
		query += ` WHERE region_code = ?`
		args = append(args, filter.RegionCode)
	}
	query += ` ORDER BY region_code, property_id LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list enrichments")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StoredEnrichment
	for rows.Next() {
		var key model.PropertyKey
		var data []byte
		var updatedAt time.Time
		if err := rows.Scan(&key.PropertyID, &key.RegionCode, &data, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan enrichment")
		}
		se, err := decodeEnrichment(key, data, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *se)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate enrichments")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM property_listings WHERE latitude IS NOT NULL AND longitude IS NOT NULL`,
	).Scan(&st.TotalProperties)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count properties")
	}

	a := &st.Averages
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(AVG(total_population), 0.0),
		COALESCE(AVG(median_household_income), 0.0),
		COALESCE(AVG(renter_percentage), 0.0),
		COALESCE(AVG(median_age), 0.0),
		COALESCE(AVG(poverty_rate), 0.0)
		FROM census_demographics`,
	).Scan(&st.TotalEnriched, &a.Population, &a.MedianHouseholdIncome, &a.RenterPercentage, &a.MedianAge, &a.PovertyRate)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enrichment averages")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT p.region_code, COUNT(*), COUNT(d.property_id)
		FROM property_listings p
		LEFT JOIN census_demographics d ON d.property_id = p.property_id AND d.region_code = p.region_code
		WHERE p.latitude IS NOT NULL AND p.longitude IS NOT NULL
		GROUP BY p.region_code ORDER BY p.region_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: region stats")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var r RegionStats
		if err := rows.Scan(&r.RegionCode, &r.Properties, &r.Enriched); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region stats")
		}
		st.Regions = append(st.Regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate region stats")
	}

	st.finish()
	return st, nil
}
