package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/demographics-cli/internal/batch"
	"github.com/sells-group/demographics-cli/internal/censuserr"
	"github.com/sells-group/demographics-cli/internal/demographics"
	"github.com/sells-group/demographics-cli/internal/enrich"
	"github.com/sells-group/demographics-cli/internal/model"
	"github.com/sells-group/demographics-cli/internal/store"
)

const (
	defaultBatchLimit = 50
	maxBatchLimit     = 500
)

// batchRunner runs a targeted batch for the enrich-batch route.
type batchRunner func(ctx context.Context, regionCode string, limit int, radiusMiles float64) (*batch.RunReport, error)

// api serves the census enrichment HTTP routes.
type api struct {
	store    store.Store
	enricher *enrich.Enricher
	scorer   *demographics.Scorer
	runBatch batchRunner
	registry *prometheus.Registry

	batchMu sync.Mutex
}

func newRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	if a.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/census", func(r chi.Router) {
		r.Post("/enrich/{property_id}/{region_code}", a.enrichProperty)
		r.Post("/enrich-batch", a.enrichBatch)
		r.Get("/property/{property_id}/{region_code}", a.getProperty)
		r.Get("/stats", a.stats)
	})
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		zap.L().Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathKey(r *http.Request) model.PropertyKey {
	return model.PropertyKey{
		PropertyID: chi.URLParam(r, "property_id"),
		RegionCode: chi.URLParam(r, "region_code"),
	}
}

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (a *api) enrichProperty(w http.ResponseWriter, r *http.Request) {
	key := pathKey(r)
	var req struct {
		RadiusMiles float64 `json:"radius_miles"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RadiusMiles < 0 {
		writeError(w, http.StatusBadRequest, "radius_miles must be positive")
		return
	}

	p, err := a.store.GetProperty(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "property not found or missing coordinates")
		return
	}
	if err != nil {
		zap.L().Error("get property", zap.Stringer("property", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "property lookup failed")
		return
	}

	res, err := a.enricher.EnrichOne(r.Context(), *p, req.RadiusMiles)
	if err != nil {
		zap.L().Warn("enrich property", zap.Stringer("property", key), zap.Error(err))
		writeError(w, enrichErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"property":     key,
		"demographics": res,
	})
}

// enrichErrorStatus maps the error taxonomy onto HTTP statuses.
func enrichErrorStatus(err error) int {
	var pe *censuserr.PersistenceError
	switch {
	case censuserr.IsGeographyNotFound(err):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pe):
		return http.StatusInternalServerError
	case censuserr.IsRetryable(err), errors.Is(err, censuserr.ErrRequestRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type scoredEnrichment struct {
	*model.StoredEnrichment
	DemandScore float64                  `json:"demand_score"`
	DemandLabel string                   `json:"demand_label"`
	KeyFactors  demographics.Explanation `json:"key_factors"`
}

func (a *api) score(rec *model.StoredEnrichment) scoredEnrichment {
	f := demographics.FactorsFromResult(rec.Result)
	s := a.scorer.Score(f)
	return scoredEnrichment{
		StoredEnrichment: rec,
		DemandScore:      s,
		DemandLabel:      a.scorer.Label(s),
		KeyFactors:       demographics.KeyFactors(f),
	}
}

func (a *api) getProperty(w http.ResponseWriter, r *http.Request) {
	key := pathKey(r)
	rec, err := a.store.GetEnrichment(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "demographics not found",
			"message": "use POST /api/census/enrich/{property_id}/{region_code} to fetch",
		})
		return
	}
	if err != nil {
		zap.L().Error("get enrichment", zap.Stringer("property", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enrichment lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"demographics": a.score(rec),
	})
}

func (a *api) enrichBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RegionCode  string  `json:"region_code"`
		Limit       int     `json:"limit"`
		RadiusMiles float64 `json:"radius_miles"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultBatchLimit
	}
	if req.Limit > maxBatchLimit {
		writeError(w, http.StatusBadRequest, "limit must be at most 500")
		return
	}
	if req.RadiusMiles < 0 {
		writeError(w, http.StatusBadRequest, "radius_miles must be positive")
		return
	}

	if !a.batchMu.TryLock() {
		writeError(w, http.StatusConflict, "a batch run is already in progress")
		return
	}
	defer a.batchMu.Unlock()

	// The run outlives a disconnecting client; stores are upserted per item.
	report, err := a.runBatch(context.WithoutCancel(r.Context()), req.RegionCode, req.Limit, req.RadiusMiles)
	if err != nil {
		zap.L().Error("enrich batch", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"run":     report,
	})
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.store.Stats(r.Context())
	if err != nil {
		zap.L().Error("stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
