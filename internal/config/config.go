package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Census     CensusConfig     `yaml:"census" mapstructure:"census"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Score      ScoreConfig      `yaml:"score" mapstructure:"score"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. For the sqlite driver
// DatabaseURL is a file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CensusConfig configures the Census Geocoder and Data API clients.
type CensusConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	DatasetYear int     `yaml:"dataset_year" mapstructure:"dataset_year"`
	TimeoutMs   int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	DataBaseURL string  `yaml:"data_base_url" mapstructure:"data_base_url"`
	GeocoderURL string  `yaml:"geocoder_url" mapstructure:"geocoder_url"`
}

// Timeout returns the per-call upstream timeout.
func (c CensusConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CacheConfig configures the coordinate and county caches.
type CacheConfig struct {
	TTLHours   int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
}

// TTL returns the cache freshness window.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// BatchConfig configures the quota-bounded batch run.
type BatchConfig struct {
	DailyQuota        int     `yaml:"daily_quota" mapstructure:"daily_quota"`
	CallsPerProperty  int     `yaml:"calls_per_property" mapstructure:"calls_per_property"`
	Size              int     `yaml:"size" mapstructure:"size"`
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	InterBatchDelayMs int     `yaml:"inter_batch_delay_ms" mapstructure:"inter_batch_delay_ms"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayMs      int     `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	RadiusMiles       float64 `yaml:"radius_miles" mapstructure:"radius_miles"`
	ProgressEvery     int     `yaml:"progress_every" mapstructure:"progress_every"`
	ErrorLogDir       string  `yaml:"error_log_dir" mapstructure:"error_log_dir"`
}

// ScoreConfig points at an optional demand-score bands file.
type ScoreConfig struct {
	BandsFile string `yaml:"bands_file" mapstructure:"bands_file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run alerts and the stats collector.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEMOGRAPHICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a useful default are registered empty so
	// AutomaticEnv can still bind them.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.dataset_year", 2022)
	v.SetDefault("census.timeout_ms", 30000)
	v.SetDefault("census.rate_limit", 10)
	v.SetDefault("census.data_base_url", "https://api.census.gov/data")
	v.SetDefault("census.geocoder_url", "https://geocoding.geo.census.gov/geocoder/geographies/coordinates")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.max_entries", 100000)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("batch.daily_quota", 50000)
	v.SetDefault("batch.calls_per_property", 3)
	v.SetDefault("batch.size", 50)
	v.SetDefault("batch.concurrency", 10)
	v.SetDefault("batch.inter_batch_delay_ms", 2000)
	v.SetDefault("batch.max_retries", 3)
	v.SetDefault("batch.retry_delay_ms", 5000)
	v.SetDefault("batch.radius_miles", 3)
	v.SetDefault("batch.progress_every", 10)
	v.SetDefault("batch.error_log_dir", ".")
	v.SetDefault("score.bands_file", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of "store",
// "batch" or "serve"; every mode needs the store.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Census.TimeoutMs <= 0 {
		errs = append(errs, "census.timeout_ms must be > 0")
	}

	switch mode {
	case "store":
	case "batch":
		b := c.Batch
		if b.DailyQuota <= 0 {
			errs = append(errs, "batch.daily_quota must be > 0")
		}
		if b.CallsPerProperty <= 0 {
			errs = append(errs, "batch.calls_per_property must be > 0")
		}
		if b.Size <= 0 {
			errs = append(errs, "batch.size must be > 0")
		}
		if b.Concurrency < 1 || b.Concurrency > 100 {
			errs = append(errs, "batch.concurrency must be between 1 and 100")
		}
		if b.MaxRetries < 0 {
			errs = append(errs, "batch.max_retries must be >= 0")
		}
		if b.RadiusMiles <= 0 {
			errs = append(errs, "batch.radius_miles must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
