package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 50000, cfg.Batch.DailyQuota)
	assert.Equal(t, 3, cfg.Batch.CallsPerProperty)
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, 10, cfg.Batch.Concurrency)
	assert.Equal(t, 2000, cfg.Batch.InterBatchDelayMs)
	assert.Equal(t, 3, cfg.Batch.MaxRetries)
	assert.Equal(t, 5000, cfg.Batch.RetryDelayMs)
	assert.InDelta(t, 3.0, cfg.Batch.RadiusMiles, 0.001)
	assert.Equal(t, 10, cfg.Batch.ProgressEvery)
	assert.Equal(t, ".", cfg.Batch.ErrorLogDir)
	assert.Equal(t, 2022, cfg.Census.DatasetYear)
	assert.Equal(t, 30*time.Second, cfg.Census.Timeout())
	assert.Equal(t, "https://api.census.gov/data", cfg.Census.DataBaseURL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, 100000, cfg.Cache.MaxEntries)
	assert.Empty(t, cfg.Cache.RedisURL)
	assert.InDelta(t, 0.10, cfg.Monitoring.FailureRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: census.db
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  concurrency: 4
  daily_quota: 900
cache:
  redis_url: redis://localhost:6379/0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "census.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 900, cfg.Batch.DailyQuota)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Batch.Size)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DEMOGRAPHICS_STORE_DRIVER", "postgres")
	t.Setenv("DEMOGRAPHICS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DEMOGRAPHICS_BATCH_DAILY_QUOTA", "1200")
	t.Setenv("DEMOGRAPHICS_CENSUS_API_KEY", "k-123")
	t.Setenv("DEMOGRAPHICS_STORE_DATABASE_URL", "postgres://localhost/census")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Batch.DailyQuota)
	assert.Equal(t, "k-123", cfg.Census.APIKey)
	assert.Equal(t, "postgres://localhost/census", cfg.Store.DatabaseURL)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("batch: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Census.TimeoutMs = 30000
	cfg.Batch = BatchConfig{
		DailyQuota: 50000, CallsPerProperty: 3, Size: 50, Concurrency: 10,
		MaxRetries: 3, RadiusMiles: 3,
	}
	cfg.Server.Port = 3000
	cfg.Monitoring.FailureRateThreshold = 0.1
	return cfg
}

func TestValidateBatch_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("batch"))
}

func TestValidateBatch_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.DailyQuota = 0
	cfg.Batch.Concurrency = 101
	cfg.Batch.RadiusMiles = 0

	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.daily_quota must be > 0")
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 100")
	assert.Contains(t, err.Error(), "batch.radius_miles must be > 0")

	// Batch bounds do not apply to the store mode.
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateStore_Missing(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateFailureThreshold(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.FailureRateThreshold = 1.5
	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failure_rate_threshold")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
