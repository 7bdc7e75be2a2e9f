// Package geocode resolves coordinates to Census statistical geographies
// (state, county, tract, block group) via the Census Geocoder.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/demographics-cli/internal/model"
)

// ServiceName identifies the geocoder in errors and call metrics.
const ServiceName = "geocoder"

// Resolver converts a coordinate into a statistical-geography identifier.
type Resolver interface {
	// Resolve returns censuserr.ErrGeographyNotFound when the point has no
	// tract or county match, and an upstream error on transport failures.
	// It never retries and never caches.
	Resolve(ctx context.Context, lat, lon float64) (*model.GeoIdentifier, error)
}

// CallObserver is notified once per upstream request with an outcome of
// "ok", "not_found" or "error".
type CallObserver func(service, outcome string)

// Option configures the resolver.
type Option func(*resolver)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *resolver) {
		r.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for geocoder calls.
func WithRateLimit(rps float64) Option {
	return func(r *resolver) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBaseURL overrides the geographies/coordinates endpoint.
func WithBaseURL(u string) Option {
	return func(r *resolver) {
		if u != "" {
			r.baseURL = u
		}
	}
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(r *resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver registers a per-call observer.
func WithObserver(obs CallObserver) Option {
	return func(r *resolver) {
		r.observe = obs
	}
}

type resolver struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	timeout    time.Duration
	observe    CallObserver
}

// NewResolver creates a Census Geocoder backed Resolver.
func NewResolver(opts ...Option) Resolver {
	r := &resolver{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		baseURL:    censusGeographiesURL,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *resolver) record(outcome string) {
	if r.observe != nil {
		r.observe(ServiceName, outcome)
	}
}
