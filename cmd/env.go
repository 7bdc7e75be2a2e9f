package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/cache"
	"github.com/sells-group/demographics-cli/internal/config"
	"github.com/sells-group/demographics-cli/internal/demographics"
	"github.com/sells-group/demographics-cli/internal/enrich"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/monitoring"
	"github.com/sells-group/demographics-cli/internal/store"
	"github.com/sells-group/demographics-cli/pkg/acs"
	"github.com/sells-group/demographics-cli/pkg/geocode"
)

// enrichEnv holds everything a command needs to enrich properties.
type enrichEnv struct {
	Store    store.Store
	Fetcher  *demographics.Fetcher
	Enricher *enrich.Enricher
	Scorer   *demographics.Scorer
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry

	redis *redis.Client
}

// Close releases the store and the Redis client.
func (e *enrichEnv) Close() {
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			zap.L().Warn("close redis", zap.Error(err))
		}
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// initEnrichEnv validates cfg for mode and wires the store, Census clients,
// caches, metrics and enricher.
func initEnrichEnv(ctx context.Context, mode string) (*enrichEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	scorer, err := initScorer(cfg.Score)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	env := &enrichEnv{
		Store:    st,
		Scorer:   scorer,
		Metrics:  metrics,
		Registry: reg,
	}

	resolver := geocode.NewResolver(
		geocode.WithBaseURL(cfg.Census.GeocoderURL),
		geocode.WithTimeout(cfg.Census.Timeout()),
		geocode.WithRateLimit(cfg.Census.RateLimit),
		geocode.WithObserver(metrics.ObserveUpstream),
	)
	acsClient := acs.NewClient(
		acs.WithBaseURL(cfg.Census.DataBaseURL),
		acs.WithYear(cfg.Census.DatasetYear),
		acs.WithAPIKey(cfg.Census.APIKey),
		acs.WithTimeout(cfg.Census.Timeout()),
		acs.WithRateLimit(cfg.Census.RateLimit),
		acs.WithObserver(metrics.ObserveUpstream),
	)

	cacheOpts := []cache.Option{
		cache.WithTTL(cfg.Cache.TTL()),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	}

	var counties cache.CountyStore = cache.NewMemory(cacheOpts...)
	if cfg.Cache.RedisURL != "" {
		client, err := cache.DialRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			// The in-memory county cache still works; only sharing is lost.
			zap.L().Warn("redis unavailable, using in-memory county cache", zap.Error(err))
		} else {
			env.redis = client
			counties = cache.NewRedis(client, cfg.Cache.TTL(), acsClient.DatasetYear())
			zap.L().Info("county cache using redis")
		}
	}

	env.Fetcher = demographics.NewFetcher(resolver, acsClient,
		demographics.WithResultCache(cache.NewTTL[cache.CoordKey, *model.EnrichmentResult](cacheOpts...)),
		demographics.WithCountyStore(counties),
	)
	env.Enricher = enrich.New(env.Fetcher, st, enrich.WithRadius(cfg.Batch.RadiusMiles))

	return env, nil
}

func initScorer(sc config.ScoreConfig) (*demographics.Scorer, error) {
	if sc.BandsFile == "" {
		return demographics.NewScorer(nil), nil
	}
	bands, err := demographics.LoadScoreConfig(sc.BandsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load score bands")
	}
	return demographics.NewScorer(bands), nil
}
